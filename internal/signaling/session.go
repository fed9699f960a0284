package signaling

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/learnx/live-backend/internal/artifacts"
	"github.com/learnx/live-backend/internal/captions"
	"github.com/learnx/live-backend/internal/livesessions"
	"github.com/learnx/live-backend/internal/models"
	"github.com/learnx/live-backend/internal/rtc"
	"github.com/learnx/live-backend/internal/translation"
)

// Commands processed by the session actor.
type (
	joinCmd struct {
		client  *Client
		payload *JoinSessionPayload
		reply   chan error
	}
	eventCmd struct {
		client  *Client
		event   string
		payload any
	}
	leaveCmd struct {
		client *Client
	}
	snapshotCmd struct {
		reply chan models.LiveSnapshot
	}
	endCmd struct {
		reason string
		reply  chan endResult
	}
	recordingDoneCmd struct {
		by     uuid.UUID
		enable bool
		rec    *models.Recording
		err    error
	}
	captionTranslatedCmd struct {
		payload CaptionTranslatedPayload
	}
	chatTranslatedCmd struct {
		payload ChatTranslatedPayload
	}
	sfuCandidateCmd struct {
		userID    uuid.UUID
		target    string
		candidate webrtc.ICECandidateInit
	}
	sfuOfferCmd struct {
		userID uuid.UUID
		offer  webrtc.SessionDescription
	}
	stopCmd struct{}
)

type endResult struct {
	session *models.LiveSession
	err     error
}

type member struct {
	client *Client
	info   models.Participant
}

// session is the actor that owns one live session. Everything below inbox is touched
// only from run.
type session struct {
	id     uuid.UUID
	hostID uuid.UUID
	limit  int
	hub    *Hub
	log    *zap.Logger
	inbox  chan any
	done   chan struct{}

	members         map[uuid.UUID]*member
	order           []uuid.UUID
	presenter       *uuid.UUID
	recording       bool
	recordingID     *uuid.UUID
	recordingBusy   bool
	captionsEnabled bool
	captionLanguage string
	artifacts       *artifacts.Relay
	captions        *captions.Window
	chat            []models.ChatMessage
	streamStart     time.Time
	attendance      *attendanceWriter
	stopped         bool
}

func newSession(h *Hub, meta *models.LiveSession) *session {
	start := time.Now().UTC()
	if meta.StartedAt != nil {
		start = *meta.StartedAt
	}
	host := meta.HostID
	s := &session{
		id:              meta.ID,
		hostID:          meta.HostID,
		limit:           meta.MaxParticipants,
		hub:             h,
		log:             h.log.With(zap.String("session_id", meta.ID.String())),
		inbox:           make(chan any),
		done:            make(chan struct{}),
		members:         make(map[uuid.UUID]*member),
		presenter:       &host,
		recording:       meta.RecordingEnabled,
		captionsEnabled: meta.CaptionsEnabled,
		captionLanguage: meta.CaptionLanguage,
		artifacts:       artifacts.NewRelay(),
		captions:        captions.NewWindow(h.cfg.CaptionWindow),
		streamStart:     start,
	}
	if h.cfg.Attendance != nil {
		s.attendance = newAttendanceWriter(meta.ID, h.cfg.Attendance, s.log)
	}
	return s
}

// post hands cmd to the actor. It reports false once the actor has stopped.
func (s *session) post(cmd any) bool {
	select {
	case s.inbox <- cmd:
		return true
	case <-s.done:
		return false
	}
}

func (s *session) run() {
	defer close(s.done)
	defer s.waitAttendance()
	defer s.hub.detach(s)
	for cmd := range s.inbox {
		s.handle(cmd)
		if s.stopped {
			return
		}
	}
}

func (s *session) handle(cmd any) {
	switch c := cmd.(type) {
	case joinCmd:
		c.reply <- s.join(c.client, c.payload)
	case eventCmd:
		if m, ok := s.members[c.client.UserID]; !ok || m.client != c.client {
			c.client.sendError(EventError, c.event, ErrNotJoined)
			return
		}
		s.dispatch(c.client, c.event, c.payload)
	case leaveCmd:
		s.leave(c.client)
	case snapshotCmd:
		c.reply <- s.snapshot()
	case endCmd:
		updated, err := s.end(c.reason)
		c.reply <- endResult{session: updated, err: err}
	case recordingDoneCmd:
		s.recordingDone(c)
	case captionTranslatedCmd:
		s.captions.SetTranslations(c.payload.ID, c.payload.Translations)
		s.broadcast(EventLiveCaptionTranslated, c.payload, nil)
	case chatTranslatedCmd:
		for i := len(s.chat) - 1; i >= 0; i-- {
			if s.chat[i].ID == c.payload.ID {
				s.chat[i].Translations = c.payload.Translations
				break
			}
		}
		s.broadcast(EventChatMessageTranslated, c.payload, nil)
	case sfuCandidateCmd:
		if m, ok := s.members[c.userID]; ok {
			m.client.sendEvent(EventSFUICECandidate, SFUCandidateOut{SessionID: s.id, Target: c.target, Candidate: c.candidate})
		}
	case sfuOfferCmd:
		if m, ok := s.members[c.userID]; ok {
			m.client.sendEvent(EventSFUSubscribeOffer, SFUDescriptionOut{SessionID: s.id, SDP: c.offer.SDP})
		}
	case stopCmd:
		for _, m := range s.members {
			m.client.close()
		}
		s.shutdown()
	}
}

func (s *session) dispatch(c *Client, event string, payload any) {
	switch p := payload.(type) {
	case *ChatMessagePayload:
		s.chatMessage(c, p)
	case *LiveCaptionPayload:
		s.liveCaption(c, p)
	case *ToggleRecordingPayload:
		s.toggleRecording(c, *p.Enable)
	case *CaptionsPayload:
		s.setCaptions(c, event == EventStartCaptions, p.Language)
	case *DescriptionPayload:
		s.relaySignal(c, event, p.TargetUserID, SignalPayload{SDP: p.SDP})
	case *CandidatePayload:
		s.relaySignal(c, event, p.TargetUserID, SignalPayload{Candidate: p.Candidate})
	case *SharePPTPayload:
		s.shareArtifact(c, event, models.ArtifactPPT, artifacts.ShareInput{FileURL: p.FileURL, FileName: p.FileName, Slides: p.Slides})
	case *SharePDFPayload:
		s.shareArtifact(c, event, models.ArtifactPDF, artifacts.ShareInput{FileURL: p.FileURL, FileName: p.FileName, TotalPages: p.TotalPages})
	case *SlideChangePayload:
		s.changeArtifact(c, event, models.ArtifactPPT, p.Slide)
	case *PageChangePayload:
		s.changeArtifact(c, event, models.ArtifactPDF, p.Page)
	case *SetPresenterPayload:
		s.setPresenter(c, p.UserID)
	case *SFUDescriptionPayload:
		if event == EventSFUPublish {
			s.sfuPublish(c, p.SDP)
		} else {
			s.sfuSubscriberAnswer(c, p.SDP)
		}
	case *SFUCandidatePayload:
		s.sfuCandidate(c, p)
	case *SessionRefPayload:
		switch event {
		case EventClosePPT:
			s.closeArtifact(c, event, models.ArtifactPPT)
		case EventClosePDF:
			s.closeArtifact(c, event, models.ArtifactPDF)
		case EventScreenShareStart:
			s.shareArtifact(c, event, models.ArtifactScreen, artifacts.ShareInput{})
		case EventScreenShareStop:
			s.closeArtifact(c, event, models.ArtifactScreen)
		case EventSFUSubscribe:
			s.sfuSubscribe(c)
		case EventEndSession:
			if c.UserID != s.hostID {
				c.sendError(EventError, event, ErrNotHost)
				return
			}
			if _, err := s.end("ended by host"); err != nil {
				c.sendError(EventError, event, err)
			}
		}
	}
}

// join

func (s *session) join(c *Client, p *JoinSessionPayload) error {
	if old, ok := s.members[c.UserID]; ok {
		if old.client != c {
			old.client.sendError(EventError, EventJoinSession, ErrReplacedByNewJoin)
		}
		old.client = c
		if p.CaptionLanguage != "" {
			old.info.CaptionLanguage = translation.NormalizeLanguage(p.CaptionLanguage)
		}
		s.sendJoined(c)
		return nil
	}
	if s.limit > 0 && len(s.members) >= s.limit && c.UserID != s.hostID {
		return ErrSessionFull
	}
	name := strings.TrimSpace(p.UserName)
	if name == "" {
		name = c.Name
	}
	m := &member{client: c, info: models.Participant{
		UserID:          c.UserID,
		Name:            name,
		Role:            c.Role,
		CaptionLanguage: translation.NormalizeLanguage(p.CaptionLanguage),
		JoinedAt:        time.Now().UTC(),
	}}
	s.members[c.UserID] = m
	s.order = append(s.order, c.UserID)

	s.sendJoined(c)
	s.broadcast(EventUserJoined, ParticipantPayload{SessionID: s.id, Participant: s.participant(m)}, c)
	s.logAttendance(attendanceRecord{kind: attendanceJoin, userID: c.UserID, role: c.Role, at: m.info.JoinedAt})
	s.log.Info("participant joined", zap.String("user_id", c.UserID.String()), zap.Int("participants", len(s.members)))
	return nil
}

func (s *session) sendJoined(c *Client) {
	c.sendEvent(EventSessionJoined, SessionJoinedPayload{
		LiveSnapshot: s.snapshot(),
		ChatHistory:  append([]models.ChatMessage{}, s.chat...),
	})
}

func (s *session) participant(m *member) models.Participant {
	p := m.info
	p.IsPresenter = s.presenter != nil && *s.presenter == p.UserID
	return p
}

func (s *session) participants() []models.Participant {
	out := make([]models.Participant, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.participant(s.members[id]))
	}
	return out
}

func (s *session) snapshot() models.LiveSnapshot {
	snap := models.LiveSnapshot{
		SessionID:       s.id,
		Participants:    s.participants(),
		IsRecording:     s.recording,
		CaptionsEnabled: s.captionsEnabled,
		CaptionLanguage: s.captionLanguage,
		Artifacts:       s.artifacts.All(),
		RecentCaptions:  s.captions.Recent(),
		StreamStartTime: s.streamStart,
	}
	if s.recordingID != nil {
		id := *s.recordingID
		snap.RecordingID = &id
	}
	if s.presenter != nil {
		id := *s.presenter
		snap.PresenterID = &id
	}
	return snap
}

// leave

func (s *session) leave(c *Client) {
	m, ok := s.members[c.UserID]
	if !ok || m.client != c {
		return
	}
	departed := s.participant(m)
	delete(s.members, c.UserID)
	for i, id := range s.order {
		if id == c.UserID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	if sfu := s.hub.cfg.SFU; sfu != nil {
		if pub, ok := sfu.Publisher(s.id); ok && pub == c.UserID {
			sfu.ClosePublisher(s.id)
		}
		sfu.Unsubscribe(s.id, c.UserID)
	}
	for _, st := range s.artifacts.CloseOwnedBy(c.UserID) {
		s.broadcast(closedEvent(st.Kind), s.artifactPayload(st), nil)
	}
	if s.presenter != nil && *s.presenter == c.UserID && c.UserID != s.hostID {
		host := s.hostID
		s.presenter = &host
		s.broadcast(EventPresenterChanged, PresenterPayload{SessionID: s.id, UserID: &host}, nil)
	}
	s.broadcast(EventUserLeft, ParticipantPayload{SessionID: s.id, Participant: departed}, nil)
	s.logAttendance(attendanceRecord{kind: attendanceLeave, userID: departed.UserID, at: time.Now().UTC()})
	s.log.Info("participant left", zap.String("user_id", c.UserID.String()), zap.Int("participants", len(s.members)))

	wasHost := c.UserID == s.hostID
	if policy := s.hub.cfg.EndPolicy; policy != nil && policy(departed, wasHost, s.participants()) {
		_, err := s.end("host left")
		if err == nil {
			return
		}
		s.log.Warn("end on host leave failed", zap.Error(err))
	}
	if len(s.members) == 0 {
		s.shutdown()
	}
}

// end marks the session ended, tells everyone, and stops the actor.
func (s *session) end(reason string) (*models.LiveSession, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	updated, err := s.hub.cfg.Store.UpdateStatus(ctx, s.id, models.SessionEnded)
	if err != nil && !errors.Is(err, livesessions.ErrInvalidTransition) {
		return nil, err
	}
	if updated == nil {
		updated, _ = s.hub.cfg.Store.GetByID(ctx, s.id)
	}
	s.broadcast(EventSessionEnded, SessionEndedPayload{SessionID: s.id, Timestamp: time.Now().UTC(), Reason: reason}, nil)
	s.log.Info("live session ended", zap.String("reason", reason))
	s.shutdown()
	return updated, nil
}

// shutdown releases media resources and stops the actor. Session status is left as is.
func (s *session) shutdown() {
	if s.stopped {
		return
	}
	s.stopped = true
	if s.recording && s.hub.cfg.Recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), recordingTimeout)
		if _, err := s.hub.cfg.Recorder.Stop(ctx, s.id); err != nil {
			s.log.Warn("stop recording on shutdown failed", zap.Error(err))
		}
		cancel()
		ctx, cancel = context.WithTimeout(context.Background(), storeTimeout)
		_ = s.hub.cfg.Store.SetRecording(ctx, s.id, false)
		cancel()
	}
	if s.hub.cfg.SFU != nil {
		s.hub.cfg.SFU.CloseRoom(s.id)
	}
	s.logAttendance(attendanceRecord{kind: attendanceClose, at: time.Now().UTC()})
	if s.attendance != nil {
		s.attendance.close()
	}
	s.log.Info("live session closed")
}

// logAttendance queues rec for the session's attendance writer.
func (s *session) logAttendance(rec attendanceRecord) {
	if s.attendance != nil {
		s.attendance.enqueue(rec)
	}
}

// waitAttendance lets queued attendance writes finish before the actor reports done.
func (s *session) waitAttendance() {
	if s.attendance == nil {
		return
	}
	s.attendance.close()
	<-s.attendance.done
}

// chat

func (s *session) chatMessage(c *Client, p *ChatMessagePayload) {
	m := s.members[c.UserID]
	msg := models.ChatMessage{
		ID:          uuid.New(),
		SessionID:   s.id,
		UserID:      c.UserID,
		UserName:    m.info.Name,
		Message:     strings.TrimSpace(p.Message),
		MessageType: "text",
		Timestamp:   time.Now().UTC(),
	}
	s.chat = append(s.chat, msg)
	if over := len(s.chat) - s.hub.cfg.ChatHistory; over > 0 {
		s.chat = append([]models.ChatMessage(nil), s.chat[over:]...)
	}
	s.broadcast(EventChatMessage, msg, nil)

	if len(p.TranslateTo) == 0 || s.hub.cfg.Translator == nil {
		return
	}
	source := p.Language
	if source == "" {
		source = m.info.CaptionLanguage
	}
	if source == "" {
		source = translation.AutoDetect
	}
	s.translate(msg.Message, source, p.TranslateTo, func(res map[string]translation.Result) any {
		return chatTranslatedCmd{payload: ChatTranslatedPayload{ID: msg.ID, SessionID: s.id, Translations: texts(res)}}
	})
}

// captions

func (s *session) liveCaption(c *Client, p *LiveCaptionPayload) {
	m := s.members[c.UserID]
	caption := models.LiveCaption{
		ID:              uuid.New(),
		SessionID:       s.id,
		UserID:          c.UserID,
		UserName:        m.info.Name,
		Text:            strings.TrimSpace(p.Text),
		Language:        translation.NormalizeLanguage(p.Language),
		Confidence:      p.Confidence,
		IsFinal:         p.IsFinal,
		Timestamp:       time.Now().UTC(),
		ClientTimestamp: p.Timestamp,
		StartTime:       p.StartTime,
	}
	s.broadcast(EventLiveCaption, caption, c)
	if !caption.IsFinal {
		return
	}
	s.captions.Add(caption)

	targets := s.captionTargets(caption.Language)
	if len(targets) == 0 || s.hub.cfg.Translator == nil {
		return
	}
	s.translate(caption.Text, caption.Language, targets, func(res map[string]translation.Result) any {
		providers := make(map[string]string, len(res))
		for lang, r := range res {
			providers[lang] = r.Provider
		}
		return captionTranslatedCmd{payload: CaptionTranslatedPayload{
			ID:           caption.ID,
			SessionID:    s.id,
			UserID:       caption.UserID,
			Text:         caption.Text,
			Language:     caption.Language,
			Translations: texts(res),
			Providers:    providers,
			Timestamp:    time.Now().UTC(),
		}}
	})
}

// captionTargets is the configured defaults plus every participant's caption language,
// minus the source.
func (s *session) captionTargets(source string) []string {
	set := make(map[string]struct{})
	for _, t := range s.hub.cfg.DefaultTargets {
		set[t] = struct{}{}
	}
	for _, m := range s.members {
		if m.info.CaptionLanguage != "" {
			set[m.info.CaptionLanguage] = struct{}{}
		}
	}
	delete(set, source)
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// translate runs off the actor and posts the result back. Results for a session that has
// stopped in the meantime are dropped.
func (s *session) translate(text, source string, targets []string, result func(map[string]translation.Result) any) {
	tr, timeout := s.hub.cfg.Translator, s.hub.cfg.TranslateTimeout
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		res, err := tr.TranslateAll(ctx, text, source, targets)
		if err != nil {
			s.log.Warn("translation failed", zap.Error(err))
			return
		}
		if len(res) == 0 {
			return
		}
		if !s.post(result(res)) {
			s.log.Debug("session gone, translation discarded")
		}
	}()
}

func texts(res map[string]translation.Result) map[string]string {
	out := make(map[string]string, len(res))
	for lang, r := range res {
		out[lang] = r.TranslatedText
	}
	return out
}

func (s *session) setCaptions(c *Client, start bool, language string) {
	event := EventStopCaptions
	if start {
		event = EventStartCaptions
	}
	if c.UserID != s.hostID {
		c.sendError(EventError, event, ErrNotHost)
		return
	}
	if language == "" {
		language = s.captionLanguage
	}
	if language == "" {
		language = "en"
	}
	s.captionsEnabled = start
	s.captionLanguage = translation.NormalizeLanguage(language)

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	if err := s.hub.cfg.Store.SetCaptions(ctx, s.id, start, s.captionLanguage); err != nil {
		s.log.Warn("persist captions flag failed", zap.Error(err))
	}
	cancel()

	out := EventCaptionsStopped
	if start {
		out = EventCaptionsStarted
	}
	s.broadcast(out, CaptionsStatePayload{SessionID: s.id, Language: s.captionLanguage, UserID: c.UserID}, nil)
}

// recording

func (s *session) toggleRecording(c *Client, enable bool) {
	switch {
	case c.UserID != s.hostID:
		c.sendError(EventRecordingError, EventToggleRecording, ErrNotHost)
		return
	case s.hub.cfg.Recorder == nil:
		c.sendError(EventRecordingError, EventToggleRecording, ErrFeatureDisabled)
		return
	case s.recordingBusy:
		c.sendError(EventRecordingError, EventToggleRecording, ErrRecordingBusy)
		return
	case enable == s.recording:
		return
	}
	s.recordingBusy = true
	rec, id, by := s.hub.cfg.Recorder, s.id, c.UserID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recordingTimeout)
		defer cancel()
		var (
			r   *models.Recording
			err error
		)
		if enable {
			r, err = rec.Start(ctx, id, by)
		} else {
			r, err = rec.Stop(ctx, id)
		}
		if !s.post(recordingDoneCmd{by: by, enable: enable, rec: r, err: err}) && enable && err == nil {
			if _, err := rec.Stop(ctx, id); err != nil {
				s.log.Warn("stop orphaned recording failed", zap.Error(err))
			}
		}
	}()
}

func (s *session) recordingDone(c recordingDoneCmd) {
	s.recordingBusy = false
	if c.err != nil {
		s.log.Warn("recording toggle failed", zap.Bool("enable", c.enable), zap.Error(c.err))
		if m, ok := s.members[c.by]; ok {
			m.client.sendError(EventRecordingError, EventToggleRecording, c.err)
		}
		return
	}
	s.recording = c.enable
	s.recordingID = nil
	var recID *uuid.UUID
	if c.rec != nil {
		id := c.rec.ID
		recID = &id
		if c.enable {
			s.recordingID = &id
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	if err := s.hub.cfg.Store.SetRecording(ctx, s.id, c.enable); err != nil {
		s.log.Warn("persist recording flag failed", zap.Error(err))
	}
	cancel()
	s.broadcast(EventRecordingStatus, RecordingStatusPayload{
		SessionID:   s.id,
		IsRecording: s.recording,
		RecordingID: recID,
		UserID:      c.by,
	}, nil)
}

// mesh signaling relay

func (s *session) relaySignal(c *Client, event, target string, out SignalPayload) {
	out.SessionID = s.id
	out.FromUserID = c.UserID
	if target == "" {
		s.broadcast(event, out, c)
		return
	}
	id, err := uuid.Parse(target)
	m, ok := s.members[id]
	if err != nil || !ok {
		c.sendError(EventSignalError, event, ErrTargetNotFound)
		return
	}
	out.TargetUserID = &id
	m.client.sendEvent(event, out)
}

// shared artifacts

func (s *session) shareArtifact(c *Client, event string, kind models.ArtifactKind, in artifacts.ShareInput) {
	owner := artifacts.Owner{ID: c.UserID, Name: s.members[c.UserID].info.Name}
	isPresenter := s.presenter != nil && *s.presenter == c.UserID
	st, err := s.artifacts.Share(kind, owner, isPresenter, in)
	if err != nil {
		c.sendError(EventArtifactError, event, err)
		return
	}
	s.broadcast(sharedEvent(kind), s.artifactPayload(st), c)
}

func (s *session) changeArtifact(c *Client, event string, kind models.ArtifactKind, page int) {
	st, err := s.artifacts.Change(kind, c.UserID, page)
	if err != nil {
		c.sendError(EventArtifactError, event, err)
		return
	}
	out := EventPDFPageChanged
	if kind == models.ArtifactPPT {
		out = EventPPTSlideChanged
	}
	s.broadcast(out, s.artifactPayload(st), c)
}

func (s *session) closeArtifact(c *Client, event string, kind models.ArtifactKind) {
	st, err := s.artifacts.Close(kind, c.UserID)
	if err != nil {
		c.sendError(EventArtifactError, event, err)
		return
	}
	s.broadcast(closedEvent(kind), s.artifactPayload(st), c)
}

func (s *session) artifactPayload(st models.ArtifactState) ArtifactPayload {
	out := ArtifactPayload{SessionID: s.id, ArtifactState: st, UserID: st.OwnerID, UserName: st.OwnerName}
	if st.Kind == models.ArtifactPPT {
		out.Slide = st.Page
	}
	return out
}

func sharedEvent(kind models.ArtifactKind) string {
	switch kind {
	case models.ArtifactPPT:
		return EventPPTShared
	case models.ArtifactPDF:
		return EventPDFShared
	}
	return EventScreenShareStarted
}

func closedEvent(kind models.ArtifactKind) string {
	switch kind {
	case models.ArtifactPPT:
		return EventPPTClosed
	case models.ArtifactPDF:
		return EventPDFClosed
	}
	return EventScreenShareStopped
}

func (s *session) setPresenter(c *Client, userID string) {
	if c.UserID != s.hostID {
		c.sendError(EventError, EventSetPresenter, ErrNotHost)
		return
	}
	id, err := uuid.Parse(userID)
	if _, ok := s.members[id]; err != nil || !ok {
		c.sendError(EventError, EventSetPresenter, ErrTargetNotFound)
		return
	}
	if sfu := s.hub.cfg.SFU; sfu != nil {
		if pub, ok := sfu.Publisher(s.id); ok && pub != id {
			sfu.ClosePublisher(s.id)
			if m, ok := s.members[pub]; ok {
				m.info.IsStreaming = false
			}
		}
	}
	s.presenter = &id
	s.broadcast(EventPresenterChanged, PresenterPayload{SessionID: s.id, UserID: &id}, nil)
}

// SFU

func (s *session) sfuPublish(c *Client, sdp string) {
	sfu := s.hub.cfg.SFU
	switch {
	case sfu == nil:
		c.sendError(EventSignalError, EventSFUPublish, ErrFeatureDisabled)
		return
	case s.presenter == nil || *s.presenter != c.UserID:
		c.sendError(EventSignalError, EventSFUPublish, ErrNotPresenter)
		return
	}
	answer, err := sfu.Publish(s.id, c.UserID, webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp})
	if err != nil {
		s.log.Warn("sfu publish failed", zap.String("user_id", c.UserID.String()), zap.Error(err))
		c.sendError(EventSignalError, EventSFUPublish, err)
		return
	}
	s.members[c.UserID].info.IsStreaming = true
	c.sendEvent(EventSFUPublishAnswer, SFUDescriptionOut{SessionID: s.id, SDP: answer.SDP})
}

func (s *session) sfuSubscribe(c *Client) {
	sfu := s.hub.cfg.SFU
	if sfu == nil {
		c.sendError(EventSignalError, EventSFUSubscribe, ErrFeatureDisabled)
		return
	}
	offer, err := sfu.Subscribe(s.id, c.UserID)
	if err != nil {
		if !errors.Is(err, rtc.ErrNoStream) {
			s.log.Warn("sfu subscribe failed", zap.String("user_id", c.UserID.String()), zap.Error(err))
		}
		c.sendError(EventSignalError, EventSFUSubscribe, err)
		return
	}
	c.sendEvent(EventSFUSubscribeOffer, SFUDescriptionOut{SessionID: s.id, SDP: offer.SDP})
}

func (s *session) sfuSubscriberAnswer(c *Client, sdp string) {
	sfu := s.hub.cfg.SFU
	if sfu == nil {
		c.sendError(EventSignalError, EventSFUSubscribeAnswer, ErrFeatureDisabled)
		return
	}
	if err := sfu.HandleSubscriberAnswer(s.id, c.UserID, webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}); err != nil {
		c.sendError(EventSignalError, EventSFUSubscribeAnswer, err)
	}
}

func (s *session) sfuCandidate(c *Client, p *SFUCandidatePayload) {
	sfu := s.hub.cfg.SFU
	if sfu == nil {
		c.sendError(EventSignalError, EventSFUICECandidate, ErrFeatureDisabled)
		return
	}
	if err := sfu.AddCandidate(s.id, c.UserID, p.Target, p.Candidate); err != nil {
		c.sendError(EventSignalError, EventSFUICECandidate, err)
	}
}

// fan-out

// broadcast sends to every participant in join order, skipping except. One marshal per event.
func (s *session) broadcast(event string, payload any, except *Client) {
	env, err := newEnvelope(event, payload)
	if err != nil {
		s.log.Error("encode event failed", zap.String("event", event), zap.Error(err))
		return
	}
	for _, id := range s.order {
		m := s.members[id]
		if m.client == except {
			continue
		}
		m.client.deliver(env)
	}
}
