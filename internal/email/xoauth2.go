package email

import "github.com/emersion/go-sasl"

// xoauth2Client implements the XOAUTH2 SASL mechanism used by Outlook IMAP and SMTP
type xoauth2Client struct {
	username string
	token    string
}

// NewXOAuth2Client returns a SASL client that authenticates with a bearer token
func NewXOAuth2Client(username, token string) sasl.Client {
	return &xoauth2Client{username: username, token: token}
}

func (c *xoauth2Client) Start() (string, []byte, error) {
	ir := []byte("user=" + c.username + "\x01auth=Bearer " + c.token + "\x01\x01")
	return "XOAUTH2", ir, nil
}

// Next answers the error challenge with an empty response so the server can
// finish the exchange with a tagged NO.
func (c *xoauth2Client) Next(challenge []byte) ([]byte, error) {
	return []byte{}, nil
}
