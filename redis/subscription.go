package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	otrace "github.com/opentracing/opentracing-go"

	"github.com/tradecore/go-marketstore-common/errhandling"
)

const (
	DefaultUpdateChannel = "subscriptions:updates"

	SubscriptionAdd    = "add"
	SubscriptionRemove = "remove"

	subscriptionsSuffix = "subscriptions"
)

// The registry change, the optional cleanup and the notification happen in
// one script so no subscriber can observe one without the others.
//
// KEYS[1] registry hash, KEYS[2] optional cleanup key
// ARGV: name, channel, payload, op, update channel
var subscriptionScript = redis.NewScript(`
local registry = KEYS[1]
local cleanup = KEYS[2]
local name = ARGV[1]
local channel = ARGV[2]
local payload = ARGV[3]
local op = ARGV[4]
local updates = ARGV[5]

if op == "add" then
  redis.call("HSET", registry, name, channel)
elseif op == "remove" then
  redis.call("HDEL", registry, name)
  if cleanup and cleanup ~= "" then
    redis.call("DEL", cleanup)
  end
else
  return {err = "unknown subscription op " .. op}
end

redis.call("PUBLISH", updates, payload)
return 1
`)

type ScriptRunner interface {
	Run(ctx context.Context, c redis.Scripter, keys []string, args ...any) *redis.Cmd
}

// SubscriptionUpdate is published on the update channel for every
// registry change.
type SubscriptionUpdate struct {
	Op        string `json:"op"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Channel   string `json:"channel,omitempty"`
}

// SubscriptionManager maintains the namespace's subscription registry, a
// hash of name to channel, and announces each change.
type SubscriptionManager struct {
	log           Logger
	namespace     string
	registryKey   string
	updateChannel string
	script        ScriptRunner
}

func NewSubscriptionManager(log Logger, namespace, updateChannel string) *SubscriptionManager {
	if updateChannel == "" {
		updateChannel = DefaultUpdateChannel
	}
	return &SubscriptionManager{
		log:           log,
		namespace:     namespace,
		registryKey:   fmt.Sprintf("%s:%s", namespace, subscriptionsSuffix),
		updateChannel: updateChannel,
		script:        subscriptionScript,
	}
}

func (m *SubscriptionManager) RegistryKey() string   { return m.registryKey }
func (m *SubscriptionManager) UpdateChannel() string { return m.updateChannel }

// Add sets name to channel in the registry and publishes the change.
// Adding an existing name overwrites its channel.
func (m *SubscriptionManager) Add(ctx context.Context, c Scripter, name, channel string) error {
	if name == "" || channel == "" {
		return errhandling.NewFatalError(
			fmt.Errorf("%w: name %q channel %q", ErrInvalidSubscription, name, channel))
	}
	return m.run(ctx, c, SubscriptionAdd, name, channel, "")
}

// Remove deletes name from the registry, deletes cleanupKey if given, and
// publishes the change. Removing an absent name still publishes.
func (m *SubscriptionManager) Remove(ctx context.Context, c Scripter, name, cleanupKey string) error {
	if name == "" {
		return errhandling.NewFatalError(fmt.Errorf("%w: empty name", ErrInvalidSubscription))
	}
	// deleting the registry itself would drop every subscription
	if cleanupKey == m.registryKey {
		return errhandling.NewFatalError(fmt.Errorf("%w: cleanup key %s is the registry", ErrInvalidSubscription, cleanupKey))
	}
	return m.run(ctx, c, SubscriptionRemove, name, "", cleanupKey)
}

func (m *SubscriptionManager) run(ctx context.Context, c Scripter, op, name, channel, cleanupKey string) error {
	span, ctx := otrace.StartSpanFromContext(ctx, "redis.subscriptions."+op)
	defer span.Finish()
	span.SetTag("subscription", name)

	payload, err := json.Marshal(SubscriptionUpdate{
		Op:        op,
		Namespace: m.namespace,
		Name:      name,
		Channel:   channel,
	})
	if err != nil {
		return errhandling.NewFatalError(err)
	}

	keys := []string{m.registryKey}
	if cleanupKey != "" {
		keys = append(keys, cleanupKey)
	}

	result, err := m.script.Run(ctx, c, keys, name, channel, string(payload), op, m.updateChannel).Int64()
	if err != nil {
		return fmt.Errorf("subscription %s %s: %w", op, name, err)
	}
	if result != 1 {
		return errhandling.NewFatalError(
			fmt.Errorf("%w: %s %s returned %d", ErrSubscriptionScript, op, name, result))
	}
	m.log.Debugf("subscription %s %s on %s", op, name, m.updateChannel)
	return nil
}
