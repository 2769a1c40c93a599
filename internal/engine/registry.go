package engine

import (
	"go.uber.org/zap"

	"github.com/nhle/syncbox/internal/adapter"
	"github.com/nhle/syncbox/internal/adapter/caldav"
	"github.com/nhle/syncbox/internal/adapter/ews"
	"github.com/nhle/syncbox/internal/adapter/gmail"
	"github.com/nhle/syncbox/internal/adapter/googleapi"
	"github.com/nhle/syncbox/internal/adapter/imapmail"
	"github.com/nhle/syncbox/internal/adapter/jmap"
	"github.com/nhle/syncbox/internal/adapter/msgraph"
	"github.com/nhle/syncbox/internal/model"
)

// AdapterRegistry resolves the protocol adapter for a provider, one
// method per sync domain.
type AdapterRegistry interface {
	Email(provider model.Provider) adapter.EmailAdapter
	Calendar(provider model.Provider) adapter.CalendarAdapter
	Tasks(provider model.Provider) adapter.TaskAdapter
}

// Registry is the default adapter registry, holding one instance of
// every protocol adapter.
type Registry struct {
	imap        *imapmail.Adapter
	ews         *ews.Adapter
	jmap        *jmap.Adapter
	gmail       *gmail.Adapter
	gcal        *googleapi.Calendar
	gtasks      *googleapi.Tasks
	graphCal    *msgraph.Calendar
	graphTasks  *msgraph.Tasks
	caldavCal   *caldav.Calendar
	caldavTasks *caldav.Tasks
}

// NewRegistry builds the default registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		imap:        imapmail.NewAdapter(logger),
		ews:         ews.NewAdapter(),
		jmap:        jmap.NewAdapter(),
		gmail:       gmail.NewAdapter(),
		gcal:        googleapi.NewCalendar(),
		gtasks:      googleapi.NewTasks(),
		graphCal:    msgraph.NewCalendar(),
		graphTasks:  msgraph.NewTasks(),
		caldavCal:   caldav.NewCalendar(),
		caldavTasks: caldav.NewTasks(),
	}
}

// Email picks the email protocol for a provider: Exchange speaks EWS,
// FastMail speaks JMAP, Gmail uses its REST API, and everything else
// falls back to IMAP/SMTP.
func (r *Registry) Email(provider model.Provider) adapter.EmailAdapter {
	switch provider {
	case model.ProviderExchange:
		return r.ews
	case model.ProviderFastMail:
		return r.jmap
	case model.ProviderGmail:
		return r.gmail
	default:
		return r.imap
	}
}

// Calendar picks the calendar protocol: Gmail uses the Google Calendar
// API, Exchange and Outlook use Microsoft Graph, and everything else
// falls back to CalDAV.
func (r *Registry) Calendar(provider model.Provider) adapter.CalendarAdapter {
	switch provider {
	case model.ProviderGmail:
		return r.gcal
	case model.ProviderExchange, model.ProviderOutlook:
		return r.graphCal
	default:
		return r.caldavCal
	}
}

// Tasks picks the task protocol, mirroring the calendar selection.
func (r *Registry) Tasks(provider model.Provider) adapter.TaskAdapter {
	switch provider {
	case model.ProviderGmail:
		return r.gtasks
	case model.ProviderExchange, model.ProviderOutlook:
		return r.graphTasks
	default:
		return r.caldavTasks
	}
}
