package registry

import (
	"regexp"
	"strings"
	"sync"

	"lunabot/pkg/logger"
)

// Command is a loaded command definition. Definitions are immutable after
// load; reload replaces the whole index.
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	// Permission is the minimum sender level (0 = everyone, 1 = group
	// admin, 2 = bot admin).
	Permission int
	// CooldownSeconds throttles per (command, sender); 0 disables.
	CooldownSeconds int
	GroupOnly       bool
	Run             RunFunc
}

// Registration is one pending handler keyed by message id, reaction key,
// or event name. OneTime registrations are removed atomically when consumed.
type Registration struct {
	Key      string
	Callback HandlerFunc
	OneTime  bool
}

// ChatPattern matches free chat text: either an exact (case-insensitive)
// string or a compiled regular expression.
type ChatPattern struct {
	Exact    string
	Regex    *regexp.Regexp
	Callback HandlerFunc
}

// ThreadScope gates a named-event subscriber to chats: every chat, one
// chat id, or a set of chat ids.
type ThreadScope struct {
	All bool
	IDs map[string]struct{}
}

func ScopeAll() ThreadScope {
	return ThreadScope{All: true}
}

func ScopeThreads(ids ...string) ThreadScope {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return ThreadScope{IDs: set}
}

func (s ThreadScope) Matches(threadID string) bool {
	if s.All {
		return true
	}
	_, ok := s.IDs[threadID]
	return ok
}

// Registry owns the command index and the process-wide handler tables. It
// is constructed once and shared by the dispatcher and feature code; all
// methods are safe for concurrent use.
type Registry struct {
	mu sync.RWMutex

	commands map[string]*Command

	replies      map[string]*Registration
	reactions    map[string]*Registration
	chatPatterns []*ChatPattern
	events       map[string]*Registration
	activeEvents map[string]ThreadScope

	groupPrefixes map[string]string
}

func New() *Registry {
	return &Registry{
		commands:      make(map[string]*Command),
		replies:       make(map[string]*Registration),
		reactions:     make(map[string]*Registration),
		events:        make(map[string]*Registration),
		activeEvents:  make(map[string]ThreadScope),
		groupPrefixes: make(map[string]string),
	}
}

// LoadCommands clears and repopulates the command index. Definitions
// missing a name or run function are rejected and logged; a name collision
// is logged and the later definition wins. Load never fails.
func (r *Registry) LoadCommands(defs []*Command) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.commands = make(map[string]*Command, len(defs))
	for _, def := range defs {
		if def == nil || def.Name == "" || def.Run == nil {
			logger.WarnCF("registry", "Skipping invalid command definition", map[string]interface{}{
				"definition": describe(def),
			})
			continue
		}
		name := strings.ToLower(def.Name)
		if _, exists := r.commands[name]; exists {
			logger.WarnCF("registry", "Command name collision, later definition wins", map[string]interface{}{
				logger.FieldCommand: name,
			})
		}
		r.commands[name] = def
		logger.DebugCF("registry", "Loaded command", map[string]interface{}{
			logger.FieldCommand: name,
		})
	}
	logger.InfoCF("registry", "Commands loaded", map[string]interface{}{
		"count": len(r.commands),
	})
}

func describe(def *Command) string {
	if def == nil {
		return "<nil>"
	}
	if def.Name == "" {
		return "<unnamed>"
	}
	return def.Name
}

// Resolve finds a command by name, falling back to a linear alias scan.
func (r *Registry) Resolve(nameOrAlias string) (*Command, bool) {
	needle := strings.ToLower(nameOrAlias)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if cmd, ok := r.commands[needle]; ok {
		return cmd, true
	}
	for _, cmd := range r.commands {
		for _, alias := range cmd.Aliases {
			if strings.ToLower(alias) == needle {
				return cmd, true
			}
		}
	}
	return nil, false
}

// Commands returns a snapshot of the loaded definitions.
func (r *Registry) Commands() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, cmd)
	}
	return out
}

// RegisterReply arms a continuation invoked when someone replies to the
// message with the given id. The registering feature owns expiry.
func (r *Registry) RegisterReply(messageID string, cb HandlerFunc, oneTime bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies[messageID] = &Registration{Key: messageID, Callback: cb, OneTime: oneTime}
}

// RegisterReaction arms a reaction handler. Keys: "messageId:emoji" for a
// specific emoji, "messageId:*" for any emoji on that message, or a bare
// emoji / "*" pattern matched against every reaction.
func (r *Registry) RegisterReaction(key string, cb HandlerFunc, oneTime bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reactions[key] = &Registration{Key: key, Callback: cb, OneTime: oneTime}
}

// RegisterChatPattern matches free chat text case-insensitively.
func (r *Registry) RegisterChatPattern(exact string, cb HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chatPatterns = append(r.chatPatterns, &ChatPattern{Exact: exact, Callback: cb})
}

// RegisterChatRegexp matches free chat text against a regular expression;
// the handler receives the submatches.
func (r *Registry) RegisterChatRegexp(re *regexp.Regexp, cb HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chatPatterns = append(r.chatPatterns, &ChatPattern{Regex: re, Callback: cb})
}

// RegisterEvent subscribes to a named event ("group.join", "call.incoming",
// "contact.joined", "group.invite", ...).
func (r *Registry) RegisterEvent(eventName string, cb HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[eventName] = &Registration{Key: eventName, Callback: cb}
}

// SetActiveEvent gates which chats a named-event subscriber fires for
// during secondary dispatch.
func (r *Registry) SetActiveEvent(eventName string, scope ThreadScope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeEvents[eventName] = scope
}

func (r *Registry) ClearActiveEvent(eventName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.activeEvents, eventName)
}

func (r *Registry) DeleteReply(messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.replies, messageID)
}

func (r *Registry) DeleteReaction(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.reactions, key)
}

// ConsumeReply finds the reply registration for a message id. A oneTime
// registration is removed in the same critical section, so two concurrent
// replies can never both observe it.
func (r *Registry) ConsumeReply(messageID string) (*Registration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.replies[messageID]
	if !ok {
		return nil, false
	}
	if reg.OneTime {
		delete(r.replies, messageID)
	}
	return reg, true
}

// ConsumeReaction implements the reaction lookup order: exact
// "targetId:emoji", then "targetId:*", then a scan of bare patterns
// ("*" or the emoji itself, keys without a ':' separator). OneTime
// registrations are removed atomically with the find.
func (r *Registry) ConsumeReaction(targetID, emoji string) (*Registration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range []string{targetID + ":" + emoji, targetID + ":*"} {
		if reg, ok := r.reactions[key]; ok {
			if reg.OneTime {
				delete(r.reactions, key)
			}
			return reg, true
		}
	}

	for key, reg := range r.reactions {
		if strings.Contains(key, ":") {
			continue
		}
		if key == "*" || key == emoji {
			if reg.OneTime {
				delete(r.reactions, key)
			}
			return reg, true
		}
	}
	return nil, false
}

// MatchChatPatterns returns every registered chat handler matching text:
// regex patterns with their submatches, exact patterns on case-insensitive
// equality. Chat handlers are not mutually exclusive.
func (r *Registry) MatchChatPatterns(text string) []ChatMatch {
	r.mu.RLock()
	patterns := make([]*ChatPattern, len(r.chatPatterns))
	copy(patterns, r.chatPatterns)
	r.mu.RUnlock()

	var matches []ChatMatch
	for _, p := range patterns {
		if p.Regex != nil {
			if m := p.Regex.FindStringSubmatch(text); m != nil {
				matches = append(matches, ChatMatch{Pattern: p, Submatches: m})
			}
		} else if strings.EqualFold(text, p.Exact) {
			matches = append(matches, ChatMatch{Pattern: p})
		}
	}
	return matches
}

type ChatMatch struct {
	Pattern    *ChatPattern
	Submatches []string
}

// Event returns the subscriber for a named event, if registered.
func (r *Registry) Event(eventName string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.events[eventName]
	return reg, ok
}

// ActiveEventSubscribers returns the named-event subscribers whose
// configured thread scope covers threadID.
func (r *Registry) ActiveEventSubscribers(threadID string) []*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Registration
	for name, scope := range r.activeEvents {
		if !scope.Matches(threadID) {
			continue
		}
		if reg, ok := r.events[name]; ok {
			out = append(out, reg)
		}
	}
	return out
}

// SetGroupPrefix overrides the command prefix for one group chat.
func (r *Registry) SetGroupPrefix(chatID, prefix string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prefix == "" {
		delete(r.groupPrefixes, chatID)
		return
	}
	r.groupPrefixes[chatID] = prefix
}

// PrefixFor returns the prefix for a chat, falling back to def.
func (r *Registry) PrefixFor(chatID, def string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.groupPrefixes[chatID]; ok && p != "" {
		return p
	}
	return def
}
