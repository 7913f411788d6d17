package seed

import models "memoir/internal/domain/models/memoir"

// Memory is one sample content item
type Memory struct {
	Type       models.ContentType
	Content    map[string]interface{}
	Tags       []string
	QuestionID *string
}

func question(id string) *string { return &id }

// Memories returns the sample pool, in append order
func Memories() []Memory {
	return []Memory{
		{
			Type: models.ContentTypeStructuredQA,
			Content: map[string]interface{}{
				"question_text": "Where were you born?",
				"answer_text":   "I was born in 1948 in a farmhouse outside Dubuque, Iowa, the third of five children.",
			},
			Tags:       []string{"childhood", "birth", "hometown"},
			QuestionID: question("q_birthplace"),
		},
		{
			Type: models.ContentTypeText,
			Content: map[string]interface{}{
				"text": "Every summer we walked two miles to the creek behind the Hendersons' barn. My father taught me to fish there with a willow pole and a bent pin.",
			},
			Tags: []string{"childhood", "parents"},
		},
		{
			Type: models.ContentTypeStructuredQA,
			Content: map[string]interface{}{
				"question_text": "How did you meet your partner?",
				"answer_text":   "I met Ruth at a church dance in 1969. She stepped on my foot twice and apologized both times, and I knew.",
			},
			Tags:       []string{"marriage", "family"},
			QuestionID: question("q_met_partner"),
		},
		{
			Type: models.ContentTypeStructuredQA,
			Content: map[string]interface{}{
				"question_text": "What was your first job?",
				"answer_text":   "Sweeping floors at the John Deere plant for a dollar an hour. Eleven years later I was running the night shift.",
			},
			Tags:       []string{"career", "work"},
			QuestionID: question("q_first_job"),
		},
		{
			Type: models.ContentTypeText,
			Content: map[string]interface{}{
				"text": "After I retired, Ruth and I drove to every national park west of the Mississippi. The grandchildren still ask about the bear at Yellowstone.",
			},
			Tags: []string{"retirement", "travel", "grandchildren"},
		},
		{
			Type: models.ContentTypeStructuredQA,
			Content: map[string]interface{}{
				"question_text": "What advice would you pass on?",
				"answer_text":   "Show up early, keep your word, and never let a day end with a harsh word unspoken for.",
			},
			Tags:       []string{"values", "advice"},
			QuestionID: question("q_advice"),
		},
	}
}
