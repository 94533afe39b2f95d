// Package workers holds the handlers behind each job lane. Workers receive
// claimed jobs, talk to storage and the outbound channel, and return an error
// only when the attempt should count against the lane's retry policy.
package workers

import (
	"context"
	"time"

	"talkasaurus/internal/queue"
)

// MessageSender delivers one message to a recipient addressed by raw channel
// id. Implemented by the Telegram client.
type MessageSender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// Locker is the distributed lock slice of the Redis service.
type Locker interface {
	AcquireLock(ctx context.Context, lockKey, lockValue string, expiration time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey, lockValue string) (bool, error)
}

// Register wires every worker to its lane. Concurrency per lane reflects the
// work: activity updates and fan-out sends run in parallel, content creation
// runs alone.
func Register(q *queue.Queue, activity *ActivityWorker, reminder *ReminderWorker, broadcast *BroadcastWorker, creator *DailyCreatorWorker, sender *DailySenderWorker) {
	q.Consume(queue.LaneActivityUpdate, 4, activity.Handle)
	q.Consume(queue.LaneReminder, 2, reminder.Handle)
	q.Consume(queue.LaneBroadcast, 4, broadcast.Handle)
	q.Consume(queue.LaneDailyMsgCreator, 1, creator.Handle)
	q.Consume(queue.LaneDailyMsgSender, 4, sender.Handle)
}
