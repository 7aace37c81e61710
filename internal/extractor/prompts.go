package extractor

// Task names, one per kind of completion.
const (
	TaskSummary       = "summary"
	TaskHighlights    = "highlights"
	TaskInsights      = "insights"
	TaskBreakdown     = "breakdown"
	TaskEditProfile   = "edit_profile"
	TaskTopics        = "extract_topic"
	TaskClipDraft     = "clip_draft"
	TaskClipRefine    = "clip_refine"
	TaskClipStructure = "clip_structure"
	TaskCleanClip     = "clean_clip"
	TaskTrends        = "create_trends"
)

const systemPrompt = `You analyse recorded conversations. The user message contains the transcript as a JSON array of captions with "timecode" ("HH:MM:SS.mmm-HH:MM:SS.mmm"), "speaker" and "caption" fields.
Ground every answer in the transcript. Do not invent facts.`

const summaryPrompt = `Create an overall summary of this transcript in under 100 words.
Return ONLY a JSON object: {"summary": ""}`

const highlightsPrompt = `Create highlights from this transcript, dividing it into appropriate sections.
For the most interesting part set "favorite": true (at least one, but not many).
Timecodes use the HH:MM:SS.mmm format taken from the transcript.
Return ONLY a JSON object:
{"highlights": [{"summary": "", "highlight": "", "timecode_start_at": "", "timecode_end_at": "", "favorite": false}]}`

const insightsPrompt = `Give honest insights on this conversation that would help the speaker improve.
Scores are decimals between 0 and 1.
Return ONLY a JSON object:
{"suggestions": [], "boring_score": 0.0, "density_score": 0.0, "clarity_score": 0.0, "engagement_score": 0.0, "interesting_score": 0.0}`

const breakdownPrompt = `Break this conversation down.
Metadata may be estimated and may be empty.
Sentiment reflects the emotional tone of the dialogue; each value is between 0 and 1.
Keywords are notable terms, each with an importance score between 0 and 1.
Return ONLY a JSON object:
{"metadata": {"duration": "", "language": "", "situation": "", "place": "", "time": "", "location": "", "participants": []},
 "sentiment": {"positive": 0.0, "neutral": 0.0, "negative": 0.0},
 "keywords": [{"keyword": "", "importance_score": 0.0}]}`

const editProfilePrompt = `This user recently had the conversation above. Update their profile from it.
Keep the profile as is when the conversation adds nothing new, and respect existing values the user may have set.
"interests" and "preferred_topics" are comma separated lists.
Use an empty string for unknown values; never "none" or "null".
Return ONLY a JSON object:
{"name": "", "age": 0, "nationality": "", "first_language": "", "second_languages": "", "interests": "", "preferred_topics": ""}`

const topicsPrompt = `Extract each topic of interest from this transcript with its related words, the relevant caption snippets copied with their timecodes, and a sentiment score from -1 (negative) to 1 (positive).
Write each topic as one sentence conveying the overall idea. Write everything in English.
Return fewer than 30 topics.
Return ONLY a JSON object:
{"topics": [{"topic": "", "words": [], "related_conversations": [{"timecode": "", "speaker": "", "caption": ""}], "sentiment": 0.0}]}`

const clipDraftPrompt = `Pick the three most compelling moments of this conversation as short clips, each under 30 seconds.
A listener should be surprised within seconds, get hooked, follow the story and end convinced.
Drop anything unnecessary: a clip may be several caption ranges joined together.
For each clip list the timecode ranges with their captions, and write one short sentence a narrator would say before the clip to tease it.`

const clipRefinePrompt = `Review the clips. Remove parts that stray from the context and reorder ranges for a more dramatic result, for example by putting the conclusion first.
Keep the context correct. Keep the narrator line to one short sentence.`

const clipStructurePrompt = `Below are clip drafts with timecodes and transcriptions. Structure them without changing the content.
"title" is a title, "description" a short description, "comment" the narrator line read aloud before the clip, so it must be natural prose.
Write title, description and comment in the language of the captions. Do not change the captions.
Timecodes use HH:MM:SS.mmm on the original recording.
Return ONLY a JSON object:
{"clips": [{"title": "", "description": "", "comment": "", "captions": [{"timecode_start": "", "timecode_end": "", "speaker": "", "caption": ""}]}]}`

const cleanClipPrompt = `These captions transcribe a clip stitched together from a longer conversation.
Make it as clean as possible: drop fillers, noise and false starts, and keep only the speech worth hearing.
Group the remaining words into natural phrases. Timecodes are on the clip's own timeline, in HH:MM:SS.mmm with millisecond precision, and must come from the captions.
Return ONLY a JSON object:
{"captions": [{"timecode_start": "", "timecode_end": "", "speaker": "", "caption": ""}]}`

const trendsPrompt = `Analyze the following clusters of conversation topics and describe the trends they show.
Each cluster lists some of its topics with their words and a sentiment from -1 to 1.
Give one trend per meaningful cluster with its "cluster_id", and any smaller micro trends you notice across clusters.
"volume" is how many topics support the trend. overall_positive_sentiment and overall_negative_sentiment are each between 0 and 1.
Micro trend titles are under 5 words. Descriptions stay general: never include anything that could identify a person.
Return ONLY a JSON object:
{"trends": [{"title": "", "description": "", "volume": 0, "overall_positive_sentiment": 0.0, "overall_negative_sentiment": 0.0, "cluster_id": 0}],
 "micro_trends": [{"title": "", "description": "", "volume": 0, "overall_positive_sentiment": 0.0, "overall_negative_sentiment": 0.0}]}`
