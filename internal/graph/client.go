package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mixelka/mailhub/pkg/models"
)

// DefaultBaseURL is the Microsoft Graph v1.0 root
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

const messageFields = "subject,from,toRecipients,bodyPreview,receivedDateTime,body"

var folderNames = map[models.Folder]string{
	models.FolderInbox: "inbox",
	models.FolderJunk:  "junkemail",
}

// APIError is a non-2xx Graph response
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Graph API error: %s (status %d)", e.Body, e.StatusCode)
}

// Client is a Microsoft Graph mail client
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new Graph client. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type emailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type itemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type sendMailRequest struct {
	Message struct {
		Subject      string      `json:"subject"`
		Body         itemBody    `json:"body"`
		ToRecipients []recipient `json:"toRecipients"`
	} `json:"message"`
}

type message struct {
	ID               string      `json:"id"`
	Subject          string      `json:"subject"`
	BodyPreview      string      `json:"bodyPreview"`
	ReceivedDateTime time.Time   `json:"receivedDateTime"`
	From             *recipient  `json:"from"`
	ToRecipients     []recipient `json:"toRecipients"`
	Body             itemBody    `json:"body"`
}

type messagesResponse struct {
	Value []message `json:"value"`
}

// Send posts an HTML message through /me/sendMail
func (c *Client) Send(ctx context.Context, _ *models.Account, accessToken string, mail models.OutgoingMail) error {
	var req sendMailRequest
	req.Message.Subject = mail.Subject
	req.Message.Body = itemBody{ContentType: "HTML", Content: mail.HTMLBody}
	req.Message.ToRecipients = []recipient{{EmailAddress: emailAddress{Address: mail.To}}}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/me/sendMail", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	_, err = c.do(httpReq, accessToken)
	return err
}

// FetchFolder lists the newest messages of a folder
func (c *Client) FetchFolder(ctx context.Context, _ *models.Account, accessToken string, folder models.Folder, limit int) ([]models.Message, error) {
	name, ok := folderNames[folder]
	if !ok {
		return nil, fmt.Errorf("unknown folder %d", folder)
	}

	params := url.Values{}
	params.Set("$top", strconv.Itoa(limit))
	params.Set("$select", messageFields)
	params.Set("$orderby", "receivedDateTime desc")
	endpoint := fmt.Sprintf("%s/me/mailFolders/%s/messages?%s", c.baseURL, name, params.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	respBody, err := c.do(httpReq, accessToken)
	if err != nil {
		return nil, err
	}

	var result messagesResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	messages := make([]models.Message, 0, len(result.Value))
	for _, m := range result.Value {
		messages = append(messages, convert(m, folder))
	}
	return messages, nil
}

func (c *Client) do(req *http.Request, accessToken string) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	return respBody, nil
}

func convert(m message, folder models.Folder) models.Message {
	msg := models.Message{
		ID:         m.ID,
		Folder:     folder.String(),
		Subject:    m.Subject,
		Preview:    m.BodyPreview,
		ReceivedAt: m.ReceivedDateTime,
	}
	if m.From != nil {
		msg.Sender = models.FormatSender(m.From.EmailAddress.Name, m.From.EmailAddress.Address)
	} else {
		msg.Sender = models.FormatSender("", "")
	}
	if strings.EqualFold(m.Body.ContentType, "html") {
		msg.HTMLBody = m.Body.Content
	} else if m.Body.Content != "" && msg.Preview == "" {
		msg.Preview = m.Body.Content
	}

	addrs := make([]string, 0, len(m.ToRecipients))
	for _, r := range m.ToRecipients {
		addrs = append(addrs, r.EmailAddress.Address)
	}
	msg.Receiver = strings.Join(addrs, ", ")
	return msg
}
