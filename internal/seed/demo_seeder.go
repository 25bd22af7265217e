package seed

import (
	"fmt"
	"time"

	"docchat-be/internal/constant"
	"docchat-be/internal/entity"
	"docchat-be/pkg/store"

	"github.com/google/uuid"
)

const mockContentFormat = "Mock content for file: %s. This is a sample text that would typically be extracted from the file."

const researchFindings = "## Key Findings\n\n" +
	"The research paper presents several important findings:\n\n" +
	"- **Temperature Correlation**: A strong correlation between increased global temperatures and decreased polar ice caps.\n" +
	"- **Species Migration**: Evidence of 37 species that have altered their migration patterns due to climate changes.\n" +
	"- **Ocean Acidification**: Measured a 15% increase in ocean acidity levels over the past decade.\n\n" +
	"The authors emphasize the need for immediate action to address these environmental challenges and suggest several policy recommendations."

const financialSummary = "# Q1 2024 Financial Performance Summary\n\n" +
	"## Revenue\n\n" +
	"Total revenue increased by 18% year-over-year to $24.3 million. This growth was primarily driven by:\n\n" +
	"- New customer acquisition (+12%)\n" +
	"- Increased spend from existing customers (+23%)\n" +
	"- Expansion into European markets (+31% regional growth)\n\n" +
	"## Profitability\n\n" +
	"- **Gross margin**: Improved to 68% (up from 65% in Q1 2023)\n" +
	"- **Operating expenses**: $15.8 million (65% of revenue, down from 69%)\n" +
	"- **Net income**: $2.9 million (12% of revenue)\n\n" +
	"## Cash Position\n\n" +
	"Cash and cash equivalents stand at $43.2 million, a strong position that supports our planned expansion initiatives for the remainder of the fiscal year."

type demoFile struct {
	name      string
	mediaType string
	size      int64
	age       time.Duration
}

type demoSession struct {
	title    string
	age      time.Duration
	files    []demoFile
	question string
	answer   string
}

var demoSessions = []demoSession{
	{
		title: "Research Paper Analysis",
		age:   24 * time.Hour,
		files: []demoFile{
			{name: "research_paper.pdf", mediaType: "application/pdf", size: 2500000, age: 24 * time.Hour},
		},
		question: "What are the key findings in this research paper?",
		answer:   researchFindings,
	},
	{
		title: "Financial Report 2024",
		age:   48 * time.Hour,
		files: []demoFile{
			{name: "q1_financial_report.pdf", mediaType: "application/pdf", size: 1800000, age: 48 * time.Hour},
			{name: "market_analysis.docx", mediaType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document", size: 950000, age: 48*time.Hour - 100*time.Second},
		},
		question: "Summarize the financial performance this quarter",
		answer:   financialSummary,
	},
}

// MockContent is the placeholder text stored for a seeded file.
func MockContent(fileName string) string {
	return fmt.Sprintf(mockContentFormat, fileName)
}

// SeedDemoSessions imports the demo sessions into s. The first one becomes
// active when the store has no active session yet.
func SeedDemoSessions(s *store.SessionStore, now time.Time) ([]entity.ChatSession, error) {
	seeded := make([]entity.ChatSession, 0, len(demoSessions))
	for _, d := range demoSessions {
		createdAt := now.Add(-d.age)

		contents := make(map[uuid.UUID]string, len(d.files))
		files := make([]entity.FileRecord, 0, len(d.files))
		for _, f := range d.files {
			rec := entity.FileRecord{
				Id:         uuid.New(),
				Name:       f.name,
				MediaType:  f.mediaType,
				SizeBytes:  f.size,
				UploadedAt: now.Add(-f.age),
				Processed:  true,
			}
			files = append(files, rec)
			contents[rec.Id] = MockContent(f.name)
		}

		sess, err := s.ImportSession(entity.ChatSession{
			Id:        uuid.New(),
			Title:     d.title,
			Files:     files,
			CreatedAt: createdAt,
			Messages: []entity.ChatMessage{
				{Id: uuid.New(), Role: constant.ChatMessageRoleUser, Content: d.question, CreatedAt: createdAt.Add(time.Hour)},
				{Id: uuid.New(), Role: constant.ChatMessageRoleAssistant, Content: d.answer, CreatedAt: createdAt.Add(time.Hour + time.Minute)},
			},
		}, contents)
		if err != nil {
			return nil, fmt.Errorf("seed %q: %w", d.title, err)
		}
		seeded = append(seeded, sess)
	}
	return seeded, nil
}
