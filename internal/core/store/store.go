// Package store 维护权威的内存有序 Deal 集合（对账存储）。
// 使用单写者模式避免锁和竞态条件。
package store

import (
	"deal-reconciler/internal/core/model"
)

// Outcome ApplyPatch 的处理结果
type Outcome int

const (
	// OutcomeMerged 补丁已合并到既有 Deal
	OutcomeMerged Outcome = iota
	// OutcomeCreated 新建 Deal 并前插到队首
	OutcomeCreated
	// OutcomeDuplicate 创建补丁的目标已存在，被抑制（集合不变）
	OutcomeDuplicate
	// OutcomeDropped 非创建补丁的目标未知，被静默丢弃（可接受的最终一致性缺口）
	OutcomeDropped
	// OutcomeIgnored 无效补丁（nil 或缺少目标标识）
	OutcomeIgnored
)

// String 返回处理结果的文本表示，用于日志与审计
func (o Outcome) String() string {
	switch o {
	case OutcomeMerged:
		return "merged"
	case OutcomeCreated:
		return "created"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeDropped:
		return "dropped"
	default:
		return "ignored"
	}
}

// Store 有序 Deal 集合（单写者）
// 展示顺序为插入顺序，创建补丁前插到队首；index 提供按 ID 的 O(1) 查找。
// 注意：本结构体默认由聚合器单 goroutine 写入；若要跨 goroutine 读，
// 请通过 Snapshot 拷贝传递。
type Store struct {
	// order 按展示顺序排列的 Deal 列表
	order []*model.Deal
	// index ID -> order 下标
	index map[string]int
}

// New 创建空的对账存储
func New() *Store {
	return &Store{
		index: make(map[string]int),
	}
}

// LoadSnapshot 以给定有序序列整体替换集合
// 用于启动时的初始加载和动作完成后的全量刷新；后写覆盖先写。
// 同一 ID 在快照中重复出现时保留首条（每个 ID 至多一条）。
// 参数 deals: 归一化后的有序 Deal 序列
func (s *Store) LoadSnapshot(deals []*model.Deal) {
	s.order = make([]*model.Deal, 0, len(deals))
	s.index = make(map[string]int, len(deals))

	for _, d := range deals {
		if d == nil || d.ID == "" {
			continue
		}
		if _, ok := s.index[d.ID]; ok {
			continue
		}
		s.index[d.ID] = len(s.order)
		s.order = append(s.order, d)
	}
}

// ApplyPatch 应用一条归一化补丁
// 创建补丁：目标已存在则抑制（不改变大小与顺序），否则新建并前插；
// 其它补丁：目标存在则就地字段叠加合并（不改变位置），不存在则静默丢弃
// （目标可能尚未被快照覆盖，属可接受的最终一致性缺口，不是错误）。
// ApplyPatch 绝不重排既有条目。
// 参数 p: 归一化补丁
// 返回: 处理结果
func (s *Store) ApplyPatch(p *model.Patch) Outcome {
	if p == nil || p.TargetID == "" {
		return OutcomeIgnored
	}

	if p.IsCreation() {
		if _, ok := s.index[p.TargetID]; ok {
			return OutcomeDuplicate
		}
		d := model.NewDeal(p.TargetID)
		p.Fields.Apply(d)
		s.prepend(d)
		return OutcomeCreated
	}

	i, ok := s.index[p.TargetID]
	if !ok {
		return OutcomeDropped
	}
	p.Fields.Apply(s.order[i])
	return OutcomeMerged
}

// prepend 将新 Deal 前插到队首并更新索引
func (s *Store) prepend(d *model.Deal) {
	s.order = append(s.order, nil)
	copy(s.order[1:], s.order)
	s.order[0] = d

	for id, i := range s.index {
		s.index[id] = i + 1
	}
	s.index[d.ID] = 0
}

// Get 按 ID 查找 Deal
// 返回值可能为 nil；返回的指针应视为只读。
func (s *Store) Get(id string) *model.Deal {
	i, ok := s.index[id]
	if !ok {
		return nil
	}
	return s.order[i]
}

// Len 获取集合大小
func (s *Store) Len() int {
	return len(s.order)
}

// IDs 按展示顺序返回所有 Deal 的 ID
// 用于顺序断言与审计
func (s *Store) IDs() []string {
	ids := make([]string, len(s.order))
	for i, d := range s.order {
		ids[i] = d.ID
	}
	return ids
}

// Snapshot 按展示顺序返回集合的深拷贝
// 返回的切片与其中的 Deal 均与存储互不影响，可安全跨 goroutine 传递
func (s *Store) Snapshot() []*model.Deal {
	out := make([]*model.Deal, len(s.order))
	for i, d := range s.order {
		out[i] = d.Clone()
	}
	return out
}
