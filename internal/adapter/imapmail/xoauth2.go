package imapmail

import (
	"fmt"
	"net/smtp"

	"github.com/emersion/go-sasl"
)

// xoauth2Initial builds the XOAUTH2 initial client response.
func xoauth2Initial(username, token string) []byte {
	return []byte(fmt.Sprintf("user=%s\x01auth=Bearer %s\x01\x01", username, token))
}

// xoauth2Client implements the SASL XOAUTH2 mechanism for IMAP.
type xoauth2Client struct {
	username string
	token    string
}

// NewXOAUTH2Client returns a sasl.Client performing XOAUTH2.
func NewXOAUTH2Client(username, token string) sasl.Client {
	return &xoauth2Client{username: username, token: token}
}

func (c *xoauth2Client) Start() (string, []byte, error) {
	return "XOAUTH2", xoauth2Initial(c.username, c.token), nil
}

func (c *xoauth2Client) Next(_ []byte) ([]byte, error) {
	// The server sends a base64 JSON error blob on failure; replying
	// with an empty line elicits the final tagged NO.
	return []byte(""), nil
}

// xoauth2SMTPAuth implements net/smtp Auth with XOAUTH2 for gomail.
type xoauth2SMTPAuth struct {
	username string
	token    string
}

// NewXOAUTH2SMTPAuth returns an smtp.Auth performing XOAUTH2.
func NewXOAUTH2SMTPAuth(username, token string) smtp.Auth {
	return &xoauth2SMTPAuth{username: username, token: token}
}

func (a *xoauth2SMTPAuth) Start(_ *smtp.ServerInfo) (string, []byte, error) {
	return "XOAUTH2", xoauth2Initial(a.username, a.token), nil
}

func (a *xoauth2SMTPAuth) Next(_ []byte, more bool) ([]byte, error) {
	if more {
		return []byte(""), nil
	}
	return nil, nil
}
