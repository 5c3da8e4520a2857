// timers.go

package game

import (
	"container/heap"
	"time"
)

type timerKind int

const (
	// timerReconnect 断线玩家的重连期限
	timerReconnect timerKind = iota
	// timerRemove 对局结束后的复盘窗口到期
	timerRemove
)

// timer 房间内的一个延迟事件
type timer struct {
	at        time.Time
	seq       uint64
	kind      timerKind
	userID    string
	cancelled bool
}

type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if !h[i].at.Equal(h[j].at) {
		return h[i].at.Before(h[j].at)
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x interface{}) { *h = append(*h, x.(*timer)) }

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// timerQueue 按触发时间排序的延迟事件队列，同一时刻按登记顺序触发
type timerQueue struct {
	h   timerHeap
	seq uint64
}

func (q *timerQueue) schedule(at time.Time, kind timerKind, userID string) *timer {
	q.seq++
	t := &timer{at: at, seq: q.seq, kind: kind, userID: userID}
	heap.Push(&q.h, t)
	return t
}

// cancel 取消事件，出队时跳过
func (q *timerQueue) cancel(t *timer) {
	if t != nil {
		t.cancelled = true
	}
}

// due 取出所有不晚于 now 且未取消的事件
func (q *timerQueue) due(now time.Time) []*timer {
	var out []*timer
	for q.h.Len() > 0 && !q.h[0].at.After(now) {
		t := heap.Pop(&q.h).(*timer)
		if !t.cancelled {
			out = append(out, t)
		}
	}
	return out
}

// pending 未取消的事件数
func (q *timerQueue) pending() int {
	n := 0
	for _, t := range q.h {
		if !t.cancelled {
			n++
		}
	}
	return n
}

func (q *timerQueue) clear() {
	for _, t := range q.h {
		t.cancelled = true
	}
	q.h = nil
}
