// Package dataset imports conversation upload manifests from spreadsheets and
// writes processing reports back out as spreadsheets.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"oto-insights-go/internal/logger"
	"oto-insights-go/internal/types"
)

// ManifestRow is one conversation to register.
type ManifestRow struct {
	Row      int
	OwnerID  string
	File     string // local path or an existing storage key
	Language string
	Place    string
}

// Load reads the first sheet of an xlsx manifest. Columns are found by header
// heuristics; rows without an owner or file are skipped.
func Load(path string) ([]ManifestRow, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, fmt.Errorf("no data rows")
	}

	header := rows[0]
	ownerIdx, fileIdx, langIdx, placeIdx := -1, -1, -1, -1
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(l, "owner") || strings.Contains(l, "user"):
			if ownerIdx == -1 {
				ownerIdx = i
			}
		case strings.Contains(l, "file") || strings.Contains(l, "audio") || strings.Contains(l, "path"):
			if fileIdx == -1 {
				fileIdx = i
			}
		case strings.Contains(l, "lang"):
			langIdx = i
		case strings.Contains(l, "place") || strings.Contains(l, "location"):
			placeIdx = i
		}
	}
	// fallback: owner, file
	if ownerIdx == -1 && fileIdx == -1 && len(header) >= 2 {
		ownerIdx, fileIdx = 0, 1
	}
	if ownerIdx == -1 || fileIdx == -1 {
		return nil, fmt.Errorf("manifest needs owner and file columns, got %v", header)
	}

	cell := func(r []string, idx int) string {
		if idx >= 0 && idx < len(r) {
			return strings.TrimSpace(r[idx])
		}
		return ""
	}
	var out []ManifestRow
	for i, r := range rows {
		if i == 0 {
			continue
		}
		row := ManifestRow{
			Row:      i + 1,
			OwnerID:  cell(r, ownerIdx),
			File:     cell(r, fileIdx),
			Language: cell(r, langIdx),
			Place:    cell(r, placeIdx),
		}
		if row.OwnerID == "" || row.File == "" {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

// Creator registers conversations. *store.Store satisfies it.
type Creator interface {
	CreateConversation(ctx context.Context, c *types.Conversation) error
}

// Uploader stores local audio. *storage.Local satisfies it.
type Uploader interface {
	Upload(ctx context.Context, prefix, ext string, r io.Reader) (string, error)
}

type ImportResult struct {
	Created []types.Conversation
	Failed  map[int]error // keyed by sheet row
}

var audioTypes = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".opus": "audio/opus",
	".ogg":  "audio/ogg",
	".webm": "audio/webm",
	".flac": "audio/flac",
}

type Importer struct {
	store Creator
	files Uploader
	log   *logger.Logger
}

func NewImporter(store Creator, files Uploader, log *logger.Logger) *Importer {
	if log == nil {
		log = logger.Nop()
	}
	return &Importer{store: store, files: files, log: log.Component("dataset.import")}
}

// Import registers every row as a NOT_STARTED conversation. Local files are
// uploaded under conversations/<owner> first; anything else is taken as an
// existing storage key. A failed row does not stop the rest.
func (im *Importer) Import(ctx context.Context, rows []ManifestRow) (ImportResult, error) {
	res := ImportResult{Failed: map[int]error{}}
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		conv, err := im.importRow(ctx, row)
		if err != nil {
			im.log.WithField("row", row.Row).WithField("owner_id", row.OwnerID).WithError(err).Warn("manifest row rejected")
			res.Failed[row.Row] = err
			continue
		}
		res.Created = append(res.Created, *conv)
	}
	im.log.WithField("created", len(res.Created)).WithField("failed", len(res.Failed)).Info("manifest imported")
	return res, nil
}

func (im *Importer) importRow(ctx context.Context, row ManifestRow) (*types.Conversation, error) {
	ext := strings.ToLower(path.Ext(row.File))
	mime, ok := audioTypes[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported audio extension %q", ext)
	}

	key := row.File
	if _, err := os.Stat(row.File); err == nil {
		if im.files == nil {
			return nil, errors.New("local file given but no storage configured")
		}
		f, err := os.Open(row.File)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", row.File, err)
		}
		key, err = im.files.Upload(ctx, "conversations/"+row.OwnerID, ext, f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", row.File, err)
		}
	}

	conv := &types.Conversation{
		OwnerID:  row.OwnerID,
		FileName: filepath.Base(row.File),
		FilePath: key,
		MimeType: mime,
		Language: row.Language,
		Place:    row.Place,
	}
	if err := im.store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}
