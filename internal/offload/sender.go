package offload

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tensord/pkg/status"
	"tensord/pkg/types"
)

// Send locates the receiver through the discovery directory, streams the
// configured artifact to it and emits one Reply event describing the
// outcome. No retry happens here; a failed transfer is reported and the
// caller decides whether to try again.
func Send(ctx context.Context, spec *types.OffloadSpec, log zerolog.Logger, emit func(types.Event)) error {
	session := uuid.NewString()
	err := send(ctx, spec, session, log)
	ev := types.Event{
		Kind:    types.EventReply,
		Session: session,
		Meta: map[string]string{
			"artifact": spec.ArtifactName,
			"service":  spec.Service,
		},
		Err: err,
	}
	if err != nil {
		transfersTotal.WithLabelValues("sender", "failed").Inc()
		log.Warn().Err(err).Str("artifact", spec.ArtifactName).Msg("offload send failed")
	} else {
		transfersTotal.WithLabelValues("sender", "completed").Inc()
		log.Info().Str("artifact", spec.ArtifactName).Str("service", spec.Service).Msg("offload send completed")
	}
	emit(ev)
	return err
}

func send(ctx context.Context, spec *types.OffloadSpec, session string, log zerolog.Logger) error {
	timeout := time.Duration(spec.TimeoutMS) * time.Millisecond
	rec, err := discover(ctx, spec.DiscoveryDir, spec.Service, timeout)
	if err != nil {
		return err
	}
	log.Debug().Str("addr", rec.Addr).Str("service", spec.Service).Msg("receiver discovered")

	f, err := os.Open(spec.ArtifactPath)
	if err != nil {
		return status.Wrap(status.TransferFailed, "open artifact", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return status.Wrap(status.TransferFailed, "stat artifact", err)
	}

	url := fmt.Sprintf("http://%s/v1/artifacts", rec.Addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, f)
	if err != nil {
		return status.Wrap(status.TransferFailed, "build request", err)
	}
	req.ContentLength = fi.Size()
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set(headerArtifact, spec.ArtifactName)
	req.Header.Set(headerSession, session)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		// Connection-level failures (refused, reset) land here, distinct
		// from a receiver-side rejection below.
		return status.Wrap(status.TransferFailed, "connect to receiver", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return status.Errorf(status.TransferFailed, "receiver rejected artifact: %s", resp.Status)
	}
	return nil
}
