package imapmail

import (
	"fmt"

	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/syncbox/internal/adapter"
	"github.com/nhle/syncbox/internal/model"
)

// connect establishes an authenticated IMAP session. Port 993 uses
// implicit TLS, anything else STARTTLS. A bearer token authenticates
// via XOAUTH2, with password login as the fallback. The caller is
// responsible for Logout on the returned client.
func connect(account model.Account, settings adapter.ProtocolSettings) (*imapclient.Client, error) {
	addr := fmt.Sprintf("%s:%d", settings.IMAPHost, settings.IMAPPort)

	var client *imapclient.Client
	var err error
	if settings.IMAPPort == 993 || settings.IMAPPort == 0 {
		if settings.IMAPPort == 0 {
			addr = settings.IMAPHost + ":993"
		}
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if settings.AccessToken != "" {
		saslClient := NewXOAUTH2Client(settings.Username, settings.AccessToken)
		if err := client.Authenticate(saslClient); err == nil {
			return client, nil
		}
		// Expired tokens fall through to password login when one exists.
	}

	if settings.Password == "" {
		_ = client.Logout().Wait()
		return nil, &adapter.AuthError{
			Provider: account.Provider,
			Message:  fmt.Sprintf("no usable credential for %s", settings.Username),
		}
	}

	if err := client.Login(settings.Username, settings.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &adapter.AuthError{
			Provider: account.Provider,
			Message: fmt.Sprintf(
				"authentication failed for %s: %v", settings.Username, err,
			),
		}
	}

	return client, nil
}
