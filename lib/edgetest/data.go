// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package edgetest

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/edge-desktop/lib/clock"
	"github.com/bureau-foundation/edge-desktop/lib/codec"
	"github.com/bureau-foundation/edge-desktop/lib/event"
	"github.com/bureau-foundation/edge-desktop/lib/ipc"
	"github.com/bureau-foundation/edge-desktop/lib/loglevel"
	"github.com/bureau-foundation/edge-desktop/lib/service"
)

// MFACode is the only authenticator code the mock data service
// accepts.
const MFACode = "424242"

// DataConfig configures a DataService.
type DataConfig struct {
	Clock  clock.Clock
	Logger *slog.Logger

	// APIVersion reported in status frames. Zero means
	// event.ExpectedAPIVersion.
	APIVersion int

	// MetricsInterval enables a periodic metrics frame. Zero
	// disables it; tests push metrics explicitly.
	MetricsInterval time.Duration
}

// DataService is an in-memory data (tunnel) service.
type DataService struct {
	clock           clock.Clock
	logger          *slog.Logger
	metricsInterval time.Duration
	broadcast       *broadcaster

	mu         sync.Mutex
	apiVersion int
	identities []*ipc.Identity
	active     bool
	started    time.Time
	logLevel   loglevel.Level
	ipInfo     ipc.IPInfo
}

// NewDataService returns a service with no identities and the tunnel
// active.
func NewDataService(config DataConfig) *DataService {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.APIVersion == 0 {
		config.APIVersion = event.ExpectedAPIVersion
	}
	return &DataService{
		clock:           config.Clock,
		logger:          config.Logger.With("mock", "data"),
		metricsInterval: config.MetricsInterval,
		broadcast:       newBroadcaster(),
		apiVersion:      config.APIVersion,
		active:          true,
		started:         config.Clock.Now(),
		logLevel:        loglevel.Info,
		ipInfo: ipc.IPInfo{
			IP:     "100.64.0.1",
			Subnet: "255.192.0.0",
			MTU:    4000,
			DNS:    "100.64.0.2",
		},
	}
}

// Register installs the data actions on server.
func (d *DataService) Register(server *service.SocketServer) {
	server.HandleStream(ipc.ActionSubscribe, d.handleSubscribe)
	server.Handle(ipc.ActionStatus, d.handleStatus)
	server.Handle(ipc.ActionAddIdentity, d.handleAddIdentity)
	server.Handle(ipc.ActionRemoveIdentity, d.handleRemoveIdentity)
	server.Handle(ipc.ActionIdentityOnOff, d.handleIdentityOnOff)
	server.Handle(ipc.ActionSetLogLevel, d.handleSetLogLevel)
	server.Handle(ipc.ActionTunnelState, d.handleTunnelState)
	server.Handle(ipc.ActionEnableMFA, d.handleEnableMFA)
	server.Handle(ipc.ActionVerifyMFA, d.handleVerifyMFA)
	server.Handle(ipc.ActionRemoveMFA, d.handleRemoveMFA)
}

// Serve runs the service on endpoint until ctx is cancelled. ready,
// if non-nil, is closed once the socket accepts connections.
func (d *DataService) Serve(ctx context.Context, endpoint service.Endpoint, ready chan<- struct{}) error {
	server := service.NewSocketServer(endpoint, d.logger)
	d.Register(server)
	if ready != nil {
		go func() {
			select {
			case <-server.Ready():
				close(ready)
			case <-ctx.Done():
			}
		}()
	}
	if d.metricsInterval > 0 {
		go d.metricsLoop(ctx)
	}
	return server.Serve(ctx)
}

func (d *DataService) metricsLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.clock.After(d.metricsInterval):
			d.PushMetrics()
		}
	}
}

func (d *DataService) handleSubscribe(ctx context.Context, raw []byte, encoder *codec.Encoder) error {
	d.mu.Lock()
	channel := d.broadcast.add(d.statusFrameLocked())
	d.mu.Unlock()
	return d.broadcast.serve(ctx, channel, encoder)
}

func (d *DataService) handleStatus(ctx context.Context, raw []byte) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return ipc.StatusResponse{APIVersion: d.apiVersion, Status: d.statusLocked()}, nil
}

func (d *DataService) handleAddIdentity(ctx context.Context, raw []byte) (any, error) {
	var request ipc.AddIdentityRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, err
	}

	token, _, err := jwt.NewParser().ParseUnverified(request.JWT, jwt.MapClaims{})
	if err != nil {
		return nil, &service.ServiceError{
			Code:           ipc.CodeCouldNotEnroll,
			Message:        "the provided token was invalid",
			AdditionalInfo: err.Error(),
		}
	}
	subject, _ := token.Claims.GetSubject()
	issuer, _ := token.Claims.GetIssuer()
	if subject == "" || issuer == "" {
		return nil, &service.ServiceError{
			Code:           ipc.CodeCouldNotEnroll,
			Message:        "the provided token was invalid",
			AdditionalInfo: "enrollment token must carry sub and iss claims",
		}
	}

	fingerprint := Fingerprint(issuer, subject)
	name := request.Name
	if name == "" {
		name = subject
	}

	d.mu.Lock()
	if d.findLocked(fingerprint) != nil {
		d.mu.Unlock()
		return nil, &service.ServiceError{
			Code:           ipc.CodeCouldNotEnroll,
			Message:        "identity already enrolled",
			AdditionalInfo: fingerprint,
		}
	}
	identity := &ipc.Identity{
		Name:          name,
		Fingerprint:   fingerprint,
		ControllerURL: issuer,
	}
	d.identities = append(d.identities, identity)
	result := cloneIdentity(identity)
	d.mu.Unlock()

	d.logger.Info("identity enrolled", "fingerprint", fingerprint, "name", name)
	d.broadcast.push(ipc.Frame{Type: ipc.FrameIdentity, Action: ipc.FrameActionAdded, Fingerprint: fingerprint, Identity: &result})
	return result, nil
}

func (d *DataService) handleRemoveIdentity(ctx context.Context, raw []byte) (any, error) {
	var request ipc.FingerprintRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, err
	}
	if !d.RemoveIdentity(request.Fingerprint) {
		return nil, identityNotFound(request.Fingerprint)
	}
	return nil, nil
}

func (d *DataService) handleIdentityOnOff(ctx context.Context, raw []byte) (any, error) {
	var request ipc.OnOffRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, err
	}

	d.mu.Lock()
	identity := d.findLocked(request.Fingerprint)
	if identity == nil {
		d.mu.Unlock()
		return nil, identityNotFound(request.Fingerprint)
	}
	identity.Active = request.OnOff
	updated := cloneIdentity(identity)
	d.mu.Unlock()

	d.broadcast.push(ipc.Frame{Type: ipc.FrameIdentity, Action: ipc.FrameActionAdded, Fingerprint: updated.Fingerprint, Identity: &updated})
	return nil, nil
}

func (d *DataService) handleSetLogLevel(ctx context.Context, raw []byte) (any, error) {
	var request ipc.LogLevelRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, err
	}
	level, err := loglevel.Parse(request.Level)
	if err != nil {
		return nil, &service.ServiceError{Code: ipc.CodeUnknownError, Message: "invalid log level", AdditionalInfo: err.Error()}
	}
	d.mu.Lock()
	d.logLevel = level
	d.mu.Unlock()
	return nil, nil
}

func (d *DataService) handleTunnelState(ctx context.Context, raw []byte) (any, error) {
	var request ipc.OnOffRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, err
	}
	d.mu.Lock()
	if request.OnOff && !d.active {
		d.started = d.clock.Now()
	}
	d.active = request.OnOff
	d.mu.Unlock()
	return nil, nil
}

func (d *DataService) handleEnableMFA(ctx context.Context, raw []byte) (any, error) {
	var request ipc.FingerprintRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, err
	}

	d.mu.Lock()
	identity := d.findLocked(request.Fingerprint)
	if identity == nil {
		d.mu.Unlock()
		return nil, identityNotFound(request.Fingerprint)
	}
	name := identity.Name
	d.mu.Unlock()

	d.broadcast.push(ipc.Frame{
		Type:        ipc.FrameMFA,
		Action:      ipc.MFAEnrollmentChallenge,
		Fingerprint: request.Fingerprint,
		MFA: &ipc.MFAChallenge{
			Successful:      true,
			ProvisioningURL: fmt.Sprintf("otpauth://totp/%s?issuer=edge&secret=EDGETEST", name),
			RecoveryCodes:   recoveryCodes(request.Fingerprint),
		},
	})
	return nil, nil
}

func (d *DataService) handleVerifyMFA(ctx context.Context, raw []byte) (any, error) {
	var request ipc.MFACodeRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, err
	}

	d.mu.Lock()
	identity := d.findLocked(request.Fingerprint)
	if identity == nil {
		d.mu.Unlock()
		return nil, identityNotFound(request.Fingerprint)
	}
	successful := request.Code == MFACode
	if successful {
		identity.MFA = &ipc.MFAInfo{Enrolled: true, RecoveryCodes: recoveryCodes(request.Fingerprint)}
	}
	d.mu.Unlock()

	d.broadcast.push(ipc.Frame{
		Type:        ipc.FrameMFA,
		Action:      ipc.MFAEnrollmentVerification,
		Fingerprint: request.Fingerprint,
		MFA:         &ipc.MFAChallenge{Successful: successful},
	})
	if !successful {
		return nil, &service.ServiceError{Code: ipc.CodeUnknownError, Message: "invalid mfa code"}
	}
	return nil, nil
}

func (d *DataService) handleRemoveMFA(ctx context.Context, raw []byte) (any, error) {
	var request ipc.MFACodeRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, err
	}

	d.mu.Lock()
	identity := d.findLocked(request.Fingerprint)
	if identity == nil {
		d.mu.Unlock()
		return nil, identityNotFound(request.Fingerprint)
	}
	if request.Code != MFACode {
		d.mu.Unlock()
		return nil, &service.ServiceError{Code: ipc.CodeUnknownError, Message: "invalid mfa code"}
	}
	identity.MFA = nil
	d.mu.Unlock()

	d.broadcast.push(ipc.Frame{
		Type:        ipc.FrameMFA,
		Action:      ipc.MFAEnrollmentRemove,
		Fingerprint: request.Fingerprint,
		MFA:         &ipc.MFAChallenge{Successful: true},
	})
	return nil, nil
}

// RemoveIdentity deletes an identity and pushes the removal, as the
// service does when an identity is revoked by its controller.
func (d *DataService) RemoveIdentity(fingerprint string) bool {
	d.mu.Lock()
	index := slices.IndexFunc(d.identities, func(identity *ipc.Identity) bool {
		return identity.Fingerprint == fingerprint
	})
	if index < 0 {
		d.mu.Unlock()
		return false
	}
	d.identities = slices.Delete(d.identities, index, index+1)
	d.mu.Unlock()

	d.broadcast.push(ipc.Frame{Type: ipc.FrameIdentity, Action: ipc.FrameActionRemoved, Fingerprint: fingerprint})
	return true
}

// AddService attaches a service to an identity and pushes it.
func (d *DataService) AddService(fingerprint string, svc ipc.Service) error {
	d.mu.Lock()
	identity := d.findLocked(fingerprint)
	if identity == nil {
		d.mu.Unlock()
		return identityNotFound(fingerprint)
	}
	identity.Services = append(identity.Services, svc)
	d.mu.Unlock()

	d.PushService(event.Added, fingerprint, svc)
	return nil
}

// PushService pushes a service frame without touching state, for
// injecting anomalies such as services of unknown identities.
func (d *DataService) PushService(action event.Action, fingerprint string, svc ipc.Service) {
	d.broadcast.push(ipc.Frame{Type: ipc.FrameService, Action: action.String(), Fingerprint: fingerprint, Service: &svc})
}

// PushFrame pushes an arbitrary frame.
func (d *DataService) PushFrame(frame ipc.Frame) {
	d.broadcast.push(frame)
}

// PushStatus pushes a full status frame.
func (d *DataService) PushStatus() {
	d.mu.Lock()
	frame := d.statusFrameLocked()
	d.mu.Unlock()
	d.broadcast.push(frame)
}

// SetMetrics records transfer counters for an identity.
func (d *DataService) SetMetrics(fingerprint string, up, down int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	identity := d.findLocked(fingerprint)
	if identity == nil {
		return identityNotFound(fingerprint)
	}
	identity.Metrics = &ipc.Metrics{Up: up, Down: down}
	return nil
}

// PushMetrics pushes the counters of every identity that has any.
func (d *DataService) PushMetrics() {
	d.mu.Lock()
	var reported []ipc.Identity
	for _, identity := range d.identities {
		if identity.Metrics != nil {
			reported = append(reported, ipc.Identity{
				Fingerprint: identity.Fingerprint,
				Metrics:     &ipc.Metrics{Up: identity.Metrics.Up, Down: identity.Metrics.Down},
			})
		}
	}
	d.mu.Unlock()
	d.broadcast.push(ipc.Frame{Type: ipc.FrameMetrics, Identities: reported})
}

// SetAPIVersion changes the version reported from now on.
func (d *DataService) SetAPIVersion(version int) {
	d.mu.Lock()
	d.apiVersion = version
	d.mu.Unlock()
}

// Shutdown pushes a shutdown frame and ends every subscribe stream.
func (d *DataService) Shutdown() {
	d.broadcast.push(ipc.Frame{Type: ipc.FrameShutdown})
	d.broadcast.disconnectAll()
}

// Subscribers returns the number of connected subscribe streams.
func (d *DataService) Subscribers() int { return d.broadcast.count() }

// Identity returns a copy of one identity.
func (d *DataService) Identity(fingerprint string) (ipc.Identity, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	identity := d.findLocked(fingerprint)
	if identity == nil {
		return ipc.Identity{}, false
	}
	return cloneIdentity(identity), true
}

// TunnelActive reports the last tunnel-state request.
func (d *DataService) TunnelActive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// LogLevel reports the last level set.
func (d *DataService) LogLevel() loglevel.Level {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.logLevel
}

func (d *DataService) findLocked(fingerprint string) *ipc.Identity {
	for _, identity := range d.identities {
		if identity.Fingerprint == fingerprint {
			return identity
		}
	}
	return nil
}

func (d *DataService) statusLocked() ipc.TunnelStatus {
	identities := make([]ipc.Identity, len(d.identities))
	for i, identity := range d.identities {
		identities[i] = cloneIdentity(identity)
	}
	ipInfo := d.ipInfo
	status := ipc.TunnelStatus{
		Active:     d.active,
		LogLevel:   d.logLevel.String(),
		IPInfo:     &ipInfo,
		Identities: identities,
	}
	if d.active {
		status.Duration = d.clock.Now().Sub(d.started).Milliseconds()
	}
	return status
}

func (d *DataService) statusFrameLocked() ipc.Frame {
	status := d.statusLocked()
	return ipc.Frame{Type: ipc.FrameStatus, APIVersion: d.apiVersion, Status: &status}
}

// Fingerprint derives the identity fingerprint the mock assigns to an
// enrollment token's issuer and subject.
func Fingerprint(issuer, subject string) string {
	sum := blake3.Sum256([]byte(issuer + "\x00" + subject))
	return hex.EncodeToString(sum[:20])
}

// EnrollmentToken builds a token the mock accepts. The signature is
// never checked; the key only makes it a well-formed JWT.
func EnrollmentToken(controllerURL, subject string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": controllerURL,
		"sub": subject,
		"em":  "ott",
	})
	return token.SignedString([]byte("edgetest"))
}

func identityNotFound(fingerprint string) *service.ServiceError {
	return &service.ServiceError{
		Code:           ipc.CodeIdentityNotFound,
		Message:        "identity not found",
		AdditionalInfo: fingerprint,
	}
}

func recoveryCodes(fingerprint string) []string {
	sum := blake3.Sum256([]byte("recovery\x00" + fingerprint))
	codes := make([]string, 4)
	for i := range codes {
		codes[i] = hex.EncodeToString(sum[i*4 : i*4+4])
	}
	return codes
}

func cloneIdentity(identity *ipc.Identity) ipc.Identity {
	clone := *identity
	clone.Services = slices.Clone(identity.Services)
	if identity.MFA != nil {
		mfa := *identity.MFA
		mfa.RecoveryCodes = slices.Clone(identity.MFA.RecoveryCodes)
		clone.MFA = &mfa
	}
	if identity.Metrics != nil {
		metrics := *identity.Metrics
		clone.Metrics = &metrics
	}
	return clone
}
