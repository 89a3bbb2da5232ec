package fedi

// Account is a platform-API account record.
type Account struct {
	ID       string `json:"id"`
	Acct     string `json:"acct"`
	Username string `json:"username"`
}

// FQN returns the account's fully-qualified name, which for remote
// accounts is already user@instance.
func (a Account) FQN() string {
	return a.Acct
}

// Mention is one account referenced by a status.
type Mention struct {
	ID   string `json:"id"`
	Acct string `json:"acct"`
}

// Status is a platform-API status record.
type Status struct {
	ID          string    `json:"id"`
	Account     Account   `json:"account"`
	Content     string    `json:"content"`
	Visibility  string    `json:"visibility"`
	SpoilerText string    `json:"spoiler_text"`
	InReplyToID string    `json:"in_reply_to_id"`
	Mentions    []Mention `json:"mentions"`
}

// Context is a status's surrounding thread.
type Context struct {
	Ancestors   []Status `json:"ancestors"`
	Descendants []Status `json:"descendants"`
}

// Notification is one streaming-API notification.
type Notification struct {
	Type    string  `json:"type"`
	Account Account `json:"account"`
	Status  *Status `json:"status"`
}
