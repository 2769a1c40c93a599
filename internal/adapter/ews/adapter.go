// Package ews implements the email adapter for Exchange Web Services.
// Requests are SOAP envelopes built from literals; responses are scraped
// with structural pattern matching for the handful of fields needed
// rather than a full XML object model.
package ews

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nhle/syncbox/internal/adapter"
	"github.com/nhle/syncbox/internal/model"
)

// Adapter implements adapter.EmailAdapter over EWS SOAP.
type Adapter struct {
	http *http.Client
}

// NewAdapter creates the EWS email adapter.
func NewAdapter() *Adapter {
	return &Adapter{
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

const findFolderEnvelope = `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:t="http://schemas.microsoft.com/exchange/services/2006/types">
<soap:Body>
  <FindFolder xmlns="http://schemas.microsoft.com/exchange/services/2006/messages" Traversal="Shallow">
    <FolderShape><t:BaseShape>Default</t:BaseShape></FolderShape>
    <ParentFolderIds><t:DistinguishedFolderId Id="msgfolderroot"/></ParentFolderIds>
  </FindFolder>
</soap:Body>
</soap:Envelope>`

const findItemEnvelope = `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:t="http://schemas.microsoft.com/exchange/services/2006/types">
<soap:Body>
  <FindItem xmlns="http://schemas.microsoft.com/exchange/services/2006/messages" Traversal="Shallow">
    <ItemShape><t:BaseShape>AllProperties</t:BaseShape></ItemShape>
    <IndexedPageItemView MaxEntriesReturned="%d" Offset="0" BasePoint="Beginning"/>
%s
    <ParentFolderIds><t:DistinguishedFolderId Id="%s"/></ParentFolderIds>
  </FindItem>
</soap:Body>
</soap:Envelope>`

const receivedRestriction = `    <Restriction>
      <t:IsGreaterThanOrEqualTo>
        <t:FieldURI FieldURI="item:DateTimeReceived" />
        <t:FieldURIOrConstant>
          <t:Constant Value="%s" />
        </t:FieldURIOrConstant>
      </t:IsGreaterThanOrEqualTo>
    </Restriction>`

const createItemEnvelope = `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:t="http://schemas.microsoft.com/exchange/services/2006/types">
<soap:Body>
  <CreateItem xmlns="http://schemas.microsoft.com/exchange/services/2006/messages" MessageDisposition="SendAndSaveCopy">
    <SavedItemFolderId><t:DistinguishedFolderId Id="sentitems"/></SavedItemFolderId>
    <Items>
      <t:Message>
        <t:Subject>%s</t:Subject>
        <t:Body BodyType="%s">%s</t:Body>
        <t:ToRecipients>%s</t:ToRecipients>
      </t:Message>
    </Items>
  </CreateItem>
</soap:Body>
</soap:Envelope>`

// ListFolders queries the message folder root, falling back to the
// well-known Exchange folder set when the response yields nothing.
func (a *Adapter) ListFolders(
	ctx context.Context,
	account model.Account,
	settings adapter.ProtocolSettings,
) ([]model.MailFolder, error) {
	payload, err := a.post(ctx, account, settings, findFolderEnvelope)
	if err != nil {
		return nil, err
	}

	folders := parseFolders(payload)
	if len(folders) == 0 {
		return defaultFolders(), nil
	}
	return folders, nil
}

// FetchRecent pages the newest items out of a distinguished folder.
func (a *Adapter) FetchRecent(
	ctx context.Context,
	account model.Account,
	settings adapter.ProtocolSettings,
	folder string,
	limit int,
) (*adapter.FetchResult, error) {
	if limit < 1 {
		limit = 50
	}

	restriction := ""
	if settings.OfflineSyncLimit > 0 {
		after := time.Now().UTC().AddDate(0, 0, -settings.OfflineSyncLimit)
		restriction = fmt.Sprintf(receivedRestriction, after.Format("2006-01-02T15:04:05Z"))
	}

	soap := fmt.Sprintf(findItemEnvelope, limit, restriction, distinguishedFolder(folder))
	payload, err := a.post(ctx, account, settings, soap)
	if err != nil {
		return nil, err
	}

	// EWS FindItem does not return attachment content.
	return &adapter.FetchResult{
		Messages: parseMessages(account.ID, folder, payload),
	}, nil
}

// Send creates and dispatches a message through CreateItem.
func (a *Adapter) Send(
	ctx context.Context,
	account model.Account,
	settings adapter.ProtocolSettings,
	mail model.OutgoingMail,
) error {
	var recipients strings.Builder
	for _, to := range mail.To {
		fmt.Fprintf(&recipients,
			"<t:Mailbox><t:Name>%s</t:Name><t:EmailAddress>%s</t:EmailAddress></t:Mailbox>",
			escapeXML(to.Name), escapeXML(to.Address),
		)
	}

	bodyType := "Text"
	bodyContent := mail.BodyText
	if mail.BodyHTML != "" {
		bodyType = "HTML"
		bodyContent = mail.BodyHTML
	}

	soap := fmt.Sprintf(createItemEnvelope,
		escapeXML(mail.Subject), bodyType, escapeXML(bodyContent), recipients.String(),
	)

	_, err := a.post(ctx, account, settings, soap)
	return err
}

// Watch is a no-op; EWS change notification is not implemented.
func (a *Adapter) Watch(
	_ context.Context,
	_ model.Account,
	_ adapter.ProtocolSettings,
	_ string,
) error {
	return nil
}

// post submits a SOAP envelope and returns the response body.
func (a *Adapter) post(
	ctx context.Context,
	account model.Account,
	settings adapter.ProtocolSettings,
	envelope string,
) (string, error) {
	if settings.Endpoint == "" {
		return "", fmt.Errorf("missing EWS endpoint")
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, settings.Endpoint, strings.NewReader(envelope),
	)
	if err != nil {
		return "", fmt.Errorf("building EWS request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml")

	switch {
	case settings.AccessToken != "":
		req.Header.Set("Authorization", "Bearer "+settings.AccessToken)
	case settings.Password != "":
		req.SetBasicAuth(settings.Username, settings.Password)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("posting to EWS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", &adapter.AuthError{
			Provider: account.Provider,
			Message:  fmt.Sprintf("EWS rejected credentials for %s", settings.Username),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("EWS request failed with status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading EWS response: %w", err)
	}
	return string(body), nil
}
