// chain.go

package engine

import (
	"container/heap"

	"github.com/jacl-coder/CyberChess-Server/internal/models"
)

// scheduledEffect 等待触发的连锁效果
type scheduledEffect struct {
	fireRound int
	seq       int
	effect    models.ChainEffect
	source    models.Role
}

// chainQueue 按触发回合排序的小顶堆，同回合按加入顺序
type chainQueue struct {
	items []scheduledEffect
	seq   int
}

func (q *chainQueue) Len() int { return len(q.items) }

func (q *chainQueue) Less(i, j int) bool {
	if q.items[i].fireRound != q.items[j].fireRound {
		return q.items[i].fireRound < q.items[j].fireRound
	}
	return q.items[i].seq < q.items[j].seq
}

func (q *chainQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *chainQueue) Push(x any) { q.items = append(q.items, x.(scheduledEffect)) }

func (q *chainQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	q.items = old[:n-1]
	return item
}

// schedule 加入一个在 fireRound 触发的效果
func (q *chainQueue) schedule(fireRound int, source models.Role, e models.ChainEffect) {
	q.seq++
	heap.Push(q, scheduledEffect{fireRound: fireRound, seq: q.seq, effect: e, source: source})
}

// due 取出所有触发回合不晚于 round 的效果
func (q *chainQueue) due(round int) []scheduledEffect {
	var fired []scheduledEffect
	for q.Len() > 0 && q.items[0].fireRound <= round {
		fired = append(fired, heap.Pop(q).(scheduledEffect))
	}
	return fired
}

// pending 待触发效果数量
func (q *chainQueue) pending() int {
	return q.Len()
}
