// Package admission decides whether an inbound message may be queued at
// all: schema and content validation first, then per-user rate limiting.
package admission

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"voicehub/domain"
	"voicehub/moderation"
)

const (
	MaxRawSize     = 4 << 10   // serialized envelope
	MaxTextLen     = 2000      // runes, after trim
	MaxFileSize    = 100 << 20 // declared, bytes
	MaxFileNameLen = 255
	MaxQuestionLen = 500
	MaxOptionLen   = 200
	MinPollOptions = 2
	MaxPollOptions = 10
)

// fileCategories maps allow-listed extensions to their share category.
var fileCategories = map[string]string{
	".jpg": "image", ".jpeg": "image", ".png": "image", ".gif": "image",
	".webp": "image", ".svg": "image",
	".pdf": "document", ".doc": "document", ".docx": "document",
	".txt": "document", ".md": "document", ".csv": "document",
	".xls": "document", ".xlsx": "document", ".ppt": "document", ".pptx": "document",
	".mp3": "audio", ".wav": "audio", ".ogg": "audio", ".m4a": "audio",
	".flac": "audio", ".aiff": "audio",
	".mp4": "video", ".webm": "video", ".mov": "video", ".avi": "video", ".mkv": "video",
}

// knownTypes is the closed set of inbound message types the router accepts.
var knownTypes = map[string]struct{}{
	"join_session":                 {},
	"leave_session":                {},
	"chat_message":                 {},
	"audio_data":                   {},
	"participant_action":           {},
	"session_control":              {},
	"ping":                         {},
	"file_share":                   {},
	"poll_create":                  {},
	"reaction":                     {},
	"edit_message":                 {},
	"delete_message":               {},
	"ai_analysis_subscribe":        {},
	"ai_analysis_unsubscribe":      {},
	"ai_analysis_request":          {},
	"ai_analysis_progress_request": {},
	"ai_analysis_cancel":           {},
}

// Validator performs the stateless per-message admission checks. Validation
// failures never raise to the caller; the message is simply not admitted.
type Validator struct {
	log       *slog.Logger
	validate  *validator.Validate
	moderator *moderation.Moderator
}

func NewValidator(log *slog.Logger, moderator *moderation.Moderator) *Validator {
	return &Validator{
		log:       log,
		validate:  validator.New(),
		moderator: moderator,
	}
}

// Validate applies the size, schema, and per-type content rules, sanitizing
// textual content in place. It returns false when the message must not be
// admitted; the reason stays local (logged at debug, counted by the router).
func (v *Validator) Validate(raw []byte, env *domain.Envelope, userID string) bool {
	if len(raw) > MaxRawSize {
		v.reject(userID, env.Type, fmt.Sprintf("payload %d bytes exceeds %d", len(raw), MaxRawSize))
		return false
	}

	if err := v.validate.Struct(env); err != nil {
		v.reject(userID, env.Type, err.Error())
		return false
	}

	if _, ok := knownTypes[env.Type]; !ok {
		v.reject(userID, env.Type, "unknown message type")
		return false
	}

	switch env.Type {
	case "chat_message":
		return v.checkText(env, userID)
	case "file_share":
		return v.checkFileShare(env, userID)
	case "poll_create":
		return v.checkPoll(env, userID)
	case "reaction":
		if !v.checkReference(env, userID) {
			return false
		}
		if env.Emoji == "" {
			v.reject(userID, env.Type, "reaction requires emoji")
			return false
		}
	case "edit_message":
		if !v.checkReference(env, userID) {
			return false
		}
		return v.checkText(env, userID)
	case "delete_message":
		return v.checkReference(env, userID)
	case "participant_action":
		if env.Action == "" || env.TargetUserID == "" {
			v.reject(userID, env.Type, "participant_action requires action and target_user_id")
			return false
		}
	case "session_control":
		if env.Action == "" {
			v.reject(userID, env.Type, "session_control requires action")
			return false
		}
	case "ai_analysis_request":
		if env.AnalysisKind == "" {
			v.reject(userID, env.Type, "analysis request requires analysis_kind")
			return false
		}
	case "ai_analysis_progress_request", "ai_analysis_cancel":
		if env.RequestID == "" {
			v.reject(userID, env.Type, "analysis lookup requires request_id")
			return false
		}
	}
	return true
}

// checkText trims, bounds, strips HTML, and censors the content in place.
func (v *Validator) checkText(env *domain.Envelope, userID string) bool {
	content := strings.TrimSpace(env.Content)
	if content == "" {
		v.reject(userID, env.Type, "empty content")
		return false
	}
	if len([]rune(content)) > MaxTextLen {
		v.reject(userID, env.Type, fmt.Sprintf("content exceeds %d characters", MaxTextLen))
		return false
	}

	content = moderation.StripHTML(content)
	if v.moderator != nil {
		sanitized, found := v.moderator.Censor(content)
		if len(found) > 0 {
			v.log.Debug("Censored words in message", "user", userID, "count", len(found))
		}
		content = sanitized
	}
	env.Content = content
	return true
}

func (v *Validator) checkFileShare(env *domain.Envelope, userID string) bool {
	if env.FileSize <= 0 || env.FileSize > MaxFileSize {
		v.reject(userID, env.Type, fmt.Sprintf("declared size %d out of bounds", env.FileSize))
		return false
	}
	name := strings.TrimSpace(env.FileName)
	if name == "" || len(name) > MaxFileNameLen {
		v.reject(userID, env.Type, "filename missing or too long")
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := fileCategories[ext]; !ok {
		v.reject(userID, env.Type, fmt.Sprintf("extension %q not allowed", ext))
		return false
	}
	env.FileName = name
	return true
}

func (v *Validator) checkPoll(env *domain.Envelope, userID string) bool {
	question := strings.TrimSpace(env.Question)
	if question == "" || len([]rune(question)) > MaxQuestionLen {
		v.reject(userID, env.Type, "question missing or too long")
		return false
	}
	if len(env.Options) < MinPollOptions || len(env.Options) > MaxPollOptions {
		v.reject(userID, env.Type, fmt.Sprintf("%d options outside [%d,%d]", len(env.Options), MinPollOptions, MaxPollOptions))
		return false
	}
	for i, opt := range env.Options {
		opt = strings.TrimSpace(opt)
		if opt == "" || len([]rune(opt)) > MaxOptionLen {
			v.reject(userID, env.Type, fmt.Sprintf("option %d missing or too long", i))
			return false
		}
		env.Options[i] = opt
	}
	env.Question = question
	return true
}

func (v *Validator) checkReference(env *domain.Envelope, userID string) bool {
	if env.TargetMessageID == "" && env.MessageID == "" {
		v.reject(userID, env.Type, "missing message reference")
		return false
	}
	return true
}

func (v *Validator) reject(userID, msgType, reason string) {
	v.log.Debug("Message rejected at validation", "user", userID, "type", msgType, "reason", reason)
}

// FileCategory returns the share category for an allow-listed filename.
func FileCategory(filename string) (string, bool) {
	cat, ok := fileCategories[strings.ToLower(filepath.Ext(filename))]
	return cat, ok
}
