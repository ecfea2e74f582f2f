// Package store 对账存储测试
package store

import (
	"testing"
	"time"

	"deal-reconciler/internal/core/model"
)

func mkDeal(id, email string, price float64) *model.Deal {
	d := model.NewDeal(id)
	d.Email = email
	d.PriceEUR = price
	d.Status = model.StatusOfferReady
	d.CreatedAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return d
}

func assertOrder(t *testing.T, s *Store, want ...string) {
	t.Helper()
	got := s.IDs()
	if len(got) != len(want) {
		t.Fatalf("集合大小 = %d, 期望 %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("顺序[%d] = %s, 期望 %s (%v)", i, got[i], want[i], got)
		}
	}
}

// TestLoadSnapshot_FullReplace 测试快照整体替换
// 连续两次 LoadSnapshot 后集合恰好等于第二个序列（含顺序）
func TestLoadSnapshot_FullReplace(t *testing.T) {
	s := New()
	s.LoadSnapshot([]*model.Deal{mkDeal("a", "a@x", 1), mkDeal("b", "b@x", 2), mkDeal("c", "c@x", 3)})
	assertOrder(t, s, "a", "b", "c")

	s.LoadSnapshot([]*model.Deal{mkDeal("y", "y@x", 9), mkDeal("x", "x@x", 8)})
	assertOrder(t, s, "y", "x")

	if s.Get("a") != nil {
		t.Fatal("旧快照的条目应被整体替换")
	}
}

// TestLoadSnapshot_DuplicateID 测试快照内重复 ID 保留首条
func TestLoadSnapshot_DuplicateID(t *testing.T) {
	s := New()
	s.LoadSnapshot([]*model.Deal{mkDeal("a", "first@x", 1), mkDeal("a", "second@x", 2)})

	if s.Len() != 1 {
		t.Fatalf("集合大小 = %d, 期望 1", s.Len())
	}
	if got := s.Get("a").Email; got != "first@x" {
		t.Fatalf("Email = %s, 期望保留首条记录", got)
	}
}

// TestApplyPatch_CreationPrepend 测试创建补丁前插到队首
func TestApplyPatch_CreationPrepend(t *testing.T) {
	s := New()
	s.LoadSnapshot([]*model.Deal{mkDeal("a", "a@x", 1), mkDeal("b", "b@x", 2)})

	outcome := s.ApplyPatch(&model.Patch{
		TargetID: "deal-9",
		Kind:     model.KindCreation,
		Fields: model.Fields{
			PriceEUR: model.Float64(500.00),
			Status:   model.String(model.StatusOfferCreated),
		},
	})

	if outcome != OutcomeCreated {
		t.Fatalf("outcome = %v, 期望 OutcomeCreated", outcome)
	}
	assertOrder(t, s, "deal-9", "a", "b")

	d := s.Get("deal-9")
	if d.PriceEUR != 500.00 {
		t.Fatalf("PriceEUR = %v, 期望 500.00", d.PriceEUR)
	}
	if d.Email != model.DefaultEmail {
		t.Fatalf("Email = %s, 期望默认值 %s", d.Email, model.DefaultEmail)
	}
}

// TestApplyPatch_CreationOnEmptyStore 测试空集合上的创建补丁落在下标 0
func TestApplyPatch_CreationOnEmptyStore(t *testing.T) {
	s := New()
	outcome := s.ApplyPatch(&model.Patch{
		TargetID: "deal-9",
		Kind:     model.KindCreation,
		Fields:   model.Fields{PriceEUR: model.Float64(500.00)},
	})

	if outcome != OutcomeCreated {
		t.Fatalf("outcome = %v, 期望 OutcomeCreated", outcome)
	}
	assertOrder(t, s, "deal-9")
}

// TestApplyPatch_DuplicateCreationSuppressed 测试重复创建抑制
// 目标已存在时集合大小、顺序和字段都不变
func TestApplyPatch_DuplicateCreationSuppressed(t *testing.T) {
	s := New()
	s.LoadSnapshot([]*model.Deal{mkDeal("a", "a@x", 1), mkDeal("b", "b@x", 2)})

	outcome := s.ApplyPatch(&model.Patch{
		TargetID: "b",
		Kind:     model.KindCreation,
		Fields:   model.Fields{Email: model.String("other@x")},
	})

	if outcome != OutcomeDuplicate {
		t.Fatalf("outcome = %v, 期望 OutcomeDuplicate", outcome)
	}
	assertOrder(t, s, "a", "b")
	if got := s.Get("b").Email; got != "b@x" {
		t.Fatalf("Email = %s, 重复创建不应修改既有字段", got)
	}
}

// TestApplyPatch_UnknownTargetDropped 测试未知目标的非创建补丁被丢弃
func TestApplyPatch_UnknownTargetDropped(t *testing.T) {
	s := New()
	s.LoadSnapshot([]*model.Deal{mkDeal("a", "a@x", 1)})

	outcome := s.ApplyPatch(&model.Patch{
		TargetID: "ghost",
		Kind:     model.KindValuation,
		Fields:   model.Fields{PriceEUR: model.Float64(99)},
	})

	if outcome != OutcomeDropped {
		t.Fatalf("outcome = %v, 期望 OutcomeDropped", outcome)
	}
	assertOrder(t, s, "a")
	if s.Get("a").PriceEUR != 1 {
		t.Fatal("丢弃的补丁不应影响既有条目")
	}
}

// TestApplyPatch_FieldAdditiveMerge 测试字段叠加合并
// 仅携带 status 的补丁保留其它已设置字段
func TestApplyPatch_FieldAdditiveMerge(t *testing.T) {
	s := New()
	d := mkDeal("a", "keep@x", 1200.50)
	conf := 0.87
	d.ValuationConfidence = &conf
	s.LoadSnapshot([]*model.Deal{d})

	outcome := s.ApplyPatch(&model.Patch{
		TargetID: "a",
		Kind:     model.KindPayoutCompleted,
		Fields:   model.Fields{Status: model.String(model.StatusPaidOut)},
	})

	if outcome != OutcomeMerged {
		t.Fatalf("outcome = %v, 期望 OutcomeMerged", outcome)
	}
	got := s.Get("a")
	if got.Status != model.StatusPaidOut {
		t.Fatalf("Status = %s, 期望 %s", got.Status, model.StatusPaidOut)
	}
	if got.Email != "keep@x" {
		t.Fatalf("Email = %s, 合并不应清空未参与字段", got.Email)
	}
	if got.PriceEUR != 1200.50 {
		t.Fatalf("PriceEUR = %v, 合并不应清空未参与字段", got.PriceEUR)
	}
	if got.ValuationConfidence == nil || *got.ValuationConfidence != 0.87 {
		t.Fatal("ValuationConfidence 不应被清空")
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("CreatedAt 不应被清空")
	}
}

// TestApplyPatch_InPlaceUpdateKeepsPosition 测试就地更新不改变展示位置
func TestApplyPatch_InPlaceUpdateKeepsPosition(t *testing.T) {
	s := New()
	s.LoadSnapshot([]*model.Deal{mkDeal("a", "a@x", 1), mkDeal("b", "b@x", 2), mkDeal("c", "c@x", 3)})

	s.ApplyPatch(&model.Patch{
		TargetID: "b",
		Kind:     model.KindValuation,
		Fields:   model.Fields{PriceEUR: model.Float64(1300.00)},
	})

	assertOrder(t, s, "a", "b", "c")
	if s.Get("b").PriceEUR != 1300.00 {
		t.Fatal("就地更新应生效")
	}
}

// TestApplyPatch_Invalid 测试无效补丁
func TestApplyPatch_Invalid(t *testing.T) {
	s := New()
	s.LoadSnapshot([]*model.Deal{mkDeal("a", "a@x", 1)})

	if got := s.ApplyPatch(nil); got != OutcomeIgnored {
		t.Fatalf("nil 补丁 outcome = %v, 期望 OutcomeIgnored", got)
	}
	if got := s.ApplyPatch(&model.Patch{Kind: model.KindValuation}); got != OutcomeIgnored {
		t.Fatalf("空目标补丁 outcome = %v, 期望 OutcomeIgnored", got)
	}
	assertOrder(t, s, "a")
}

// TestSnapshot_DeepCopy 测试 Snapshot 返回与存储隔离的拷贝
func TestSnapshot_DeepCopy(t *testing.T) {
	s := New()
	s.LoadSnapshot([]*model.Deal{mkDeal("a", "a@x", 1)})

	snap := s.Snapshot()
	snap[0].Email = "mutated@x"
	low := 7.0
	snap[0].PriceLowEUR = &low

	if s.Get("a").Email != "a@x" {
		t.Fatal("修改 Snapshot 拷贝不应影响存储")
	}
	if s.Get("a").PriceLowEUR != nil {
		t.Fatal("修改 Snapshot 拷贝不应影响存储指针字段")
	}
}
