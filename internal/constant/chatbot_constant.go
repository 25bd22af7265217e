package constant

const (
	ChatMessageRoleUser      = "user"
	ChatMessageRoleAssistant = "assistant"
	ChatMessageRoleSystem    = "system"

	// Fixed assistant replies.
	NoFileSelectedMessage  = "Please select at least one file to analyze."
	GenerationErrorMessage = "Sorry, I encountered an error while processing your request. Please try again."

	NewSessionTitleFormat = "New Chat (%s)"
	// en-US short date, e.g. 10/19/2026
	SessionTitleDateLayout = "1/2/2006"

	SkippedFilesWarning = "Some files were skipped. Only PDF, DOC, DOCX, and TXT files are supported."

	DocumentSeparator = "\n\n=====NEXT DOCUMENT=====\n\n"

	// DocumentAssistantPromptV1 takes the joined documents and the user query.
	DocumentAssistantPromptV1 = `
You are an AI assistant that helps users understand documents they've uploaded.
Always provide well-formatted responses with appropriate paragraphs, bullet points, and sections.

DOCUMENTS CONTENT:
%s

USER QUERY:
%s

Please provide a comprehensive, well-structured response addressing the user's query based on the document content.
Use bullet points for lists, proper paragraphs for explanations, and clear section headings where appropriate.
`

	DefaultTemperature = 0.2
	DefaultMaxTokens   = 1024
)

// SupportedExtensions lists the lower-cased upload extensions the ingester accepts.
var SupportedExtensions = []string{".pdf", ".doc", ".docx", ".txt"}

type QuickAction struct {
	Key    string
	Label  string
	Prompt string
}

var QuickActions = []QuickAction{
	{Key: "summarize", Label: "Summarize", Prompt: "Summarize the key points from these documents."},
	{Key: "key-points", Label: "Key Points", Prompt: "Extract and list the main key points from these documents."},
	{Key: "explain", Label: "Explain Simply", Prompt: "Explain the content of these documents in simpler terms."},
}

// FindQuickAction looks up a quick action by key.
func FindQuickAction(key string) (QuickAction, bool) {
	for _, a := range QuickActions {
		if a.Key == key {
			return a, true
		}
	}
	return QuickAction{}, false
}
