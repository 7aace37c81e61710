package dataset_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"oto-insights-go/internal/actionable"
	"oto-insights-go/internal/aggregator"
	"oto-insights-go/internal/dataset"
	"oto-insights-go/internal/storage"
	"oto-insights-go/internal/store"
	"oto-insights-go/internal/testsupport"
	"oto-insights-go/internal/types"
)

func writeManifest(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(t.TempDir(), "manifest.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDetectsColumns(t *testing.T) {
	path := writeManifest(t, [][]any{
		{"Language", "User ID", "Audio file", "Place"},
		{"en", "alice", "conversations/alice/a.wav", "Paris"},
		{"fr", "", "conversations/x/b.wav", ""},
		{"", "bob", "", ""},
		{"", "bob", "conversations/bob/c.mp3", ""},
	})
	rows, err := dataset.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %+v", rows)
	}
	want := dataset.ManifestRow{Row: 2, OwnerID: "alice", File: "conversations/alice/a.wav", Language: "en", Place: "Paris"}
	if rows[0] != want {
		t.Fatalf("row = %+v, want %+v", rows[0], want)
	}
	if rows[1].Row != 5 || rows[1].OwnerID != "bob" {
		t.Fatalf("second row = %+v", rows[1])
	}
}

func TestLoadRejectsManifestWithoutColumns(t *testing.T) {
	path := writeManifest(t, [][]any{{"Notes"}, {"hello"}})
	if _, err := dataset.Load(path); err == nil {
		t.Fatal("expected error for manifest without owner and file columns")
	}
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	s := testsupport.MustOpenStore(t)
	files, err := storage.NewLocal(t.TempDir(), "http://files.test", "secret")
	if err != nil {
		t.Fatal(err)
	}
	local := filepath.Join(t.TempDir(), "walk.wav")
	if err := os.WriteFile(local, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}

	im := dataset.NewImporter(s, files, nil)
	res, err := im.Import(ctx, []dataset.ManifestRow{
		{Row: 2, OwnerID: "alice", File: local, Language: "en"},
		{Row: 3, OwnerID: "bob", File: "conversations/bob/existing.m4a"},
		{Row: 4, OwnerID: "bob", File: "notes.txt"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Created) != 2 || len(res.Failed) != 1 || res.Failed[4] == nil {
		t.Fatalf("result = %+v", res)
	}

	uploaded := res.Created[0]
	if uploaded.FileName != "walk.wav" || uploaded.MimeType != "audio/wav" || uploaded.Status != types.StatusNotStarted {
		t.Fatalf("uploaded conversation = %+v", uploaded)
	}
	rc, err := files.Open(ctx, uploaded.FilePath)
	if err != nil {
		t.Fatalf("uploaded object missing: %v", err)
	}
	rc.Close()

	if res.Created[1].FilePath != "conversations/bob/existing.m4a" || res.Created[1].MimeType != "audio/mp4" {
		t.Fatalf("keyed conversation = %+v", res.Created[1])
	}
	n, err := s.CountConversations(ctx)
	if err != nil || n != 2 {
		t.Fatalf("count = %d, %v", n, err)
	}
	got, err := s.ListConversations(ctx, store.ConversationFilter{OwnerID: "alice"})
	if err != nil || len(got) != 1 || got[0].Language != "en" {
		t.Fatalf("alice conversations = %+v, %v", got, err)
	}
}

func TestWriteSummary(t *testing.T) {
	convs := []types.Conversation{
		{ID: "a1", OwnerID: "alice", Status: types.StatusCompleted, Points: 30, FileName: "a.wav"},
		{ID: "b1", OwnerID: "bob", Status: types.StatusFailed, FileName: "b.wav"},
	}
	report := aggregator.Aggregate(convs, map[string]int{"a1": 1})
	path := filepath.Join(t.TempDir(), "report.xlsx")
	if err := dataset.WriteSummary(path, report, actionable.Generate(report), convs, nil); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	owners, err := f.GetRows("Owners")
	if err != nil {
		t.Fatal(err)
	}
	if len(owners) != 4 {
		t.Fatalf("owner rows = %v", owners)
	}
	if owners[0][0] != "Owner" || owners[1][0] != "alice" || owners[3][0] != "TOTAL" {
		t.Fatalf("owner rows = %v", owners)
	}
	if owners[1][6] != "30" || owners[1][7] != "1" || owners[3][8] != "0.5" {
		t.Fatalf("alice/total stats = %v / %v", owners[1], owners[3])
	}

	listing, err := f.GetRows("Conversations")
	if err != nil {
		t.Fatal(err)
	}
	if len(listing) != 3 || listing[2][0] != "b1" || listing[2][2] != "failed" {
		t.Fatalf("conversation rows = %v", listing)
	}

	actions, err := f.GetRows("Actions")
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 2 || actions[1][0] != "bob" {
		t.Fatalf("action rows = %v", actions)
	}
}
