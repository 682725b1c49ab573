package mailhandler

type CreateMailReq struct {
	To       []string `json:"to"`
	Subject  string   `json:"subject"`
	Text     string   `json:"text"`
	HTML     string   `json:"html"`
	FromName string   `json:"from_name"`
}

type CreateMailResp struct {
	QueueID string `json:"queue_id"`
	MailID  string `json:"mail_id"`
}
