package prover

import (
	"encoding/json"
	"fmt"

	natsutil "github.com/kthomas/go-natsutil"
	uuid "github.com/kthomas/go.uuid"
	"github.com/nats-io/nats.go"
	"github.com/provideplatform/fold/common"
)

const natsSessionNotificationStep = "step"
const natsSessionNotificationChaff = "chaff"
const natsSessionNotificationCompressed = "compressed"

// dispatchSessionNotification broadcasts a session event when NATS streaming
// is configured; delivery is best-effort
func dispatchSessionNotification(sessionID uuid.UUID, event string, status *SessionStatus) {
	if !common.ConsumeNATSStreamingSubscriptions {
		return
	}

	_, err := publishSessionNotification(sessionID, event, status)
	if err != nil {
		common.Log.Warningf("failed to dispatch %s notification for session %s; %s", event, sessionID.String(), err.Error())
	}
}

func publishSessionNotification(sessionID uuid.UUID, event string, status *SessionStatus) (*nats.PubAck, error) {
	subject := notificationsSubject(sessionID, event)
	if subject == nil {
		return nil, fmt.Errorf("failed to dispatch event notification for session %s", sessionID.String())
	}

	payload, err := json.Marshal(status)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event notification for session %s; %s", sessionID.String(), err.Error())
	}

	return natsutil.NatsJetstreamPublish(*subject, payload)
}

// notificationsSubject returns a namespaced subject suitable for pub/sub subscriptions
func notificationsSubject(sessionID uuid.UUID, suffix string) *string {
	if sessionID == uuid.Nil || suffix == "" {
		return nil
	}
	return common.StringOrNil(fmt.Sprintf("%s.%s", notificationsSubjectPrefix(sessionID), suffix))
}

// notificationsSubjectPrefix returns the pub/sub subject prefix for the session
func notificationsSubjectPrefix(sessionID uuid.UUID) string {
	return fmt.Sprintf("fold.session.%s", sessionID.String())
}
