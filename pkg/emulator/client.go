package emulator

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tonkeeper/tongo/boc"
	tongoCode "github.com/tonkeeper/tongo/code"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"github.com/txsociety/tx-retracer/pkg/core"
	"github.com/vmihailenco/msgpack/v5"
	"log/slog"
	"time"
)

const (
	channelPrefix = "emulator_channel_"
	resultPrefix  = "emulator_result_"
	errorPrefix   = "emulator_error_"
	versionKey    = "emulator_version"

	taskType       = "transaction"
	successPayload = "success"
	errorPayload   = "error"
)

var ErrEngine = errors.New("emulator error")

type taskEnvelope struct {
	Type string          `msgpack:"type"`
	Task transactionTask `msgpack:"task"`
}

type transactionTask struct {
	ID           string `msgpack:"id"`
	Config       string `msgpack:"config"`
	Libs         string `msgpack:"libs"`
	ShardAccount string `msgpack:"shard_account"`
	Message      string `msgpack:"message"`
	Now          uint32 `msgpack:"now"`
	Lt           uint64 `msgpack:"lt"`
	RandSeed     string `msgpack:"rand_seed"`
	Verbosity    int    `msgpack:"verbosity"`
	IgnoreChksig bool   `msgpack:"ignore_chksig"`
	DebugEnabled bool   `msgpack:"debug_enabled"`
}

type transactionResult struct {
	Success      bool   `msgpack:"success"`
	Error        string `msgpack:"error"`
	VmExitCode   int    `msgpack:"vm_exit_code"`
	Transaction  string `msgpack:"transaction"`
	ShardAccount string `msgpack:"shard_account"`
	VmLog        string `msgpack:"vm_log"`
	Actions      string `msgpack:"actions"`
	Logs         string `msgpack:"logs"`
	DebugLogs    string `msgpack:"debug_logs"`
}

// Client sends emulation tasks to an emulator worker through a Redis queue and waits for
// the completion notification on a per-task channel.
type Client struct {
	rdb     *redis.Client
	queue   string
	timeout time.Duration
}

func New(addr, queue string, timeout time.Duration) *Client {
	return &Client{
		rdb:     redis.NewClient(&redis.Options{Addr: addr}),
		queue:   queue,
		timeout: timeout,
	}
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) RunTransaction(ctx context.Context, params core.EmulationParams) (core.EmulationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	task, err := newTransactionTask(params)
	if err != nil {
		return core.EmulationResult{}, fmt.Errorf("failed to prepare task: %w", err)
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseArrayEncodedStructs(false)
	if err := enc.Encode(taskEnvelope{Type: taskType, Task: task}); err != nil {
		return core.EmulationResult{}, fmt.Errorf("failed to serialize task: %w", err)
	}

	pubsub := c.rdb.Subscribe(ctx, channelPrefix+task.ID)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return core.EmulationResult{}, fmt.Errorf("failed to subscribe to emulator channel: %w", err)
	}
	if err := c.rdb.LPush(ctx, c.queue, buf.Bytes()).Err(); err != nil {
		return core.EmulationResult{}, fmt.Errorf("failed to push task to emulator queue: %w", err)
	}
	defer c.cleanup(task.ID)

	var msg *redis.Message
	select {
	case <-ctx.Done():
		return core.EmulationResult{}, fmt.Errorf("failed to receive result from emulator channel: %w", ctx.Err())
	case m, ok := <-pubsub.Channel():
		if !ok {
			return core.EmulationResult{}, errors.New("emulator channel closed")
		}
		msg = m
	}

	switch msg.Payload {
	case successPayload:
	case errorPayload:
		text, err := c.rdb.Get(ctx, errorPrefix+task.ID).Result()
		if err != nil {
			return core.EmulationResult{}, fmt.Errorf("failed to receive error from emulator: %w", err)
		}
		return core.EmulationResult{}, fmt.Errorf("%w: %v", ErrEngine, text)
	default:
		return core.EmulationResult{}, fmt.Errorf("unexpected message from emulator channel: %v", msg.Payload)
	}

	raw, err := c.rdb.Get(ctx, resultPrefix+task.ID).Bytes()
	if err != nil {
		return core.EmulationResult{}, fmt.Errorf("failed to get result from redis: %w", err)
	}
	var result transactionResult
	if err := msgpack.Unmarshal(raw, &result); err != nil {
		return core.EmulationResult{}, fmt.Errorf("failed to decode result: %w", err)
	}
	return result.convert()
}

func (c *Client) cleanup(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.rdb.Del(ctx, resultPrefix+id, errorPrefix+id).Err(); err != nil {
		slog.Warn("failed to delete emulator result", "id", id, "error", err)
	}
}

// Version returns the version published by the emulator worker. A worker that does not
// publish it yields an empty version.
func (c *Client) Version(ctx context.Context) (core.EngineVersion, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	fields, err := c.rdb.HGetAll(ctx, versionKey).Result()
	if err != nil {
		return core.EngineVersion{}, fmt.Errorf("failed to get emulator version: %w", err)
	}
	return core.EngineVersion{
		CommitHash: fields["commit_hash"],
		CommitDate: fields["commit_date"],
	}, nil
}

func marshalBase64(v any) (string, error) {
	c := boc.NewCell()
	if err := tlb.Marshal(c, v); err != nil {
		return "", err
	}
	return c.ToBocBase64()
}

func newTransactionTask(params core.EmulationParams) (transactionTask, error) {
	task := transactionTask{
		ID:           uuid.NewString(),
		Now:          params.Now,
		Lt:           params.Lt,
		RandSeed:     params.RandSeed.Hex(),
		Verbosity:    int(params.Verbosity),
		IgnoreChksig: params.IgnoreChksig,
		DebugEnabled: params.DebugEnabled,
	}
	var err error
	if params.Config != nil {
		if task.Config, err = params.Config.ToBocBase64(); err != nil {
			return transactionTask{}, fmt.Errorf("config: %w", err)
		}
	}
	if len(params.Libraries) > 0 {
		if task.Libs, err = tongoCode.LibrariesToBase64(params.Libraries); err != nil {
			return transactionTask{}, fmt.Errorf("libraries: %w", err)
		}
	}
	if task.ShardAccount, err = marshalBase64(params.Account.ShardAccount()); err != nil {
		return transactionTask{}, fmt.Errorf("shard account: %w", err)
	}
	if task.Message, err = marshalBase64(params.Message); err != nil {
		return transactionTask{}, fmt.Errorf("message: %w", err)
	}
	return task, nil
}

func decodeBase64Cell(s string) (*boc.Cell, error) {
	cells, err := boc.DeserializeBocBase64(s)
	if err != nil {
		return nil, err
	}
	if len(cells) == 0 {
		return nil, errors.New("boc without roots")
	}
	return cells[0], nil
}

func (r transactionResult) convert() (core.EmulationResult, error) {
	res := core.EmulationResult{
		Success:    r.Success,
		Error:      r.Error,
		VmExitCode: r.VmExitCode,
		VmLog:      r.VmLog,
		Logs:       r.Logs,
		DebugLogs:  r.DebugLogs,
	}
	if r.ShardAccount != "" {
		c, err := decodeBase64Cell(r.ShardAccount)
		if err != nil {
			return core.EmulationResult{}, fmt.Errorf("invalid shard account: %w", err)
		}
		var account tlb.ShardAccount
		if err := tlb.Unmarshal(c, &account); err != nil {
			return core.EmulationResult{}, fmt.Errorf("invalid shard account: %w", err)
		}
		res.Account = core.NewSnapshot(account)
	}
	if r.Transaction != "" {
		c, err := decodeBase64Cell(r.Transaction)
		if err != nil {
			return core.EmulationResult{}, fmt.Errorf("invalid transaction: %w", err)
		}
		var tx tlb.Transaction
		if err := tlb.Unmarshal(c, &tx); err != nil {
			return core.EmulationResult{}, fmt.Errorf("invalid transaction: %w", err)
		}
		res.Transaction = &tx
		res.StateHashAfter = ton.Bits256(tx.StateUpdate.NewHash)
	}
	if r.Actions != "" {
		b, err := base64.StdEncoding.DecodeString(r.Actions)
		if err != nil {
			return core.EmulationResult{}, fmt.Errorf("invalid actions: %w", err)
		}
		res.Actions = hex.EncodeToString(b)
	}
	return res, nil
}
