// Package wizard runs multi-step chat dialogues ("scenes").
//
// Each chat has at most one active scene. Its progress lives in a Session
// that is created when the scene is entered, saved after every step and
// deleted when the scene is left, cancelled or fails.
package wizard

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// DefaultExitKeywords abandon any scene when sent as a command or as plain text.
var DefaultExitKeywords = []string{"exit", "quit", "leave", "cancel"}

type SceneID string

// Session is the scratch state of one chat's active scene.
type Session struct {
	Scene           SceneID `json:"scene"`
	Step            int     `json:"step"`
	GameName        string  `json:"gameName,omitempty"`
	GameGiftCost    float64 `json:"gameGiftCost,omitempty"`
	ParticipantName string  `json:"participantName,omitempty"`
}

// SessionStore persists sessions by chat id. GetSession returns nil when the chat has none.
type SessionStore interface {
	GetSession(ctx context.Context, chatID int64) (*Session, error)
	SaveSession(ctx context.Context, chatID int64, s *Session) error
	DeleteSession(ctx context.Context, chatID int64) error
}

// Input is one inbound update as seen by a scene.
type Input struct {
	ChatID int64
	Text   string
	// IsText is false for stickers, photos, button presses and the like.
	IsText bool
	// Command is the lowercased slash command without "/", if any.
	Command string
}

// Context is handed to the step being run.
type Context struct {
	ChatID  int64
	Text    string
	IsText  bool
	Session *Session

	left bool
}

// Next advances the session to the following step once the current one returns.
func (c *Context) Next() {
	c.Session.Step++
}

// Leave ends the scene once the current step returns.
func (c *Context) Leave() {
	c.left = true
}

type Step func(ctx context.Context, c *Context) error

type Scene struct {
	ID    SceneID
	Steps []Step
}

// Stage routes input to the active scene of each chat.
type Stage struct {
	scenes       map[SceneID]*Scene
	store        SessionStore
	exitKeywords map[string]bool
	onCancel     func(ctx context.Context, chatID int64) error
}

// NewStage builds a stage. onCancel is called after an exit keyword abandons a scene.
func NewStage(store SessionStore, onCancel func(ctx context.Context, chatID int64) error, scenes ...*Scene) *Stage {
	st := &Stage{
		scenes:       make(map[SceneID]*Scene, len(scenes)),
		store:        store,
		exitKeywords: make(map[string]bool, len(DefaultExitKeywords)),
		onCancel:     onCancel,
	}
	for _, sc := range scenes {
		st.scenes[sc.ID] = sc
	}
	for _, kw := range DefaultExitKeywords {
		st.exitKeywords[kw] = true
	}
	return st
}

// Enter starts id for the chat, discarding any scene in progress, and runs its first step.
func (st *Stage) Enter(ctx context.Context, chatID int64, id SceneID) error {
	scene, ok := st.scenes[id]
	if !ok {
		return fmt.Errorf("unknown scene %q", id)
	}

	log.Debug().Int64("chat_id", chatID).Str("scene", string(id)).Msg("Entering scene")

	sess := &Session{Scene: id}
	return st.run(ctx, scene, sess, &Context{ChatID: chatID, Session: sess})
}

// Handle feeds in to the chat's active scene. It reports false when no scene
// is active, leaving the input to the caller.
func (st *Stage) Handle(ctx context.Context, in Input) (bool, error) {
	sess, err := st.store.GetSession(ctx, in.ChatID)
	if err != nil {
		return false, fmt.Errorf("failed to load session: %w", err)
	}
	if sess == nil {
		return false, nil
	}

	scene, ok := st.scenes[sess.Scene]
	if !ok {
		log.Warn().Int64("chat_id", in.ChatID).Str("scene", string(sess.Scene)).Msg("Dropping session of unknown scene")
		return false, st.store.DeleteSession(ctx, in.ChatID)
	}

	if st.isExit(in) {
		log.Debug().Int64("chat_id", in.ChatID).Str("scene", string(sess.Scene)).Msg("Scene cancelled")
		if err := st.store.DeleteSession(ctx, in.ChatID); err != nil {
			return true, fmt.Errorf("failed to delete session: %w", err)
		}
		if st.onCancel != nil {
			return true, st.onCancel(ctx, in.ChatID)
		}
		return true, nil
	}

	c := &Context{
		ChatID:  in.ChatID,
		Text:    in.Text,
		IsText:  in.IsText && in.Command == "",
		Session: sess,
	}
	return true, st.run(ctx, scene, sess, c)
}

// Leave drops the chat's active scene, if any.
func (st *Stage) Leave(ctx context.Context, chatID int64) error {
	return st.store.DeleteSession(ctx, chatID)
}

func (st *Stage) run(ctx context.Context, scene *Scene, sess *Session, c *Context) error {
	if sess.Step < 0 || sess.Step >= len(scene.Steps) {
		_ = st.store.DeleteSession(ctx, c.ChatID)
		return fmt.Errorf("scene %s has no step %d", scene.ID, sess.Step)
	}

	step := sess.Step
	log.Debug().Int64("chat_id", c.ChatID).Str("scene", string(scene.ID)).Int("step", step).Msg("Running scene step")

	if err := scene.Steps[step](ctx, c); err != nil {
		if delErr := st.store.DeleteSession(ctx, c.ChatID); delErr != nil {
			log.Error().Err(delErr).Int64("chat_id", c.ChatID).Msg("Failed to delete session of failed scene")
		}
		return fmt.Errorf("scene %s step %d: %w", scene.ID, step, err)
	}

	if c.left || sess.Step >= len(scene.Steps) {
		return st.store.DeleteSession(ctx, c.ChatID)
	}
	return st.store.SaveSession(ctx, c.ChatID, sess)
}

func (st *Stage) isExit(in Input) bool {
	if in.Command != "" {
		return st.exitKeywords[in.Command]
	}
	return in.IsText && st.exitKeywords[strings.ToLower(strings.TrimSpace(in.Text))]
}
