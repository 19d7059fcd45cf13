package service

import (
	"testing"
	"time"

	"github.com/bigkaa/goartstore/retention-module/internal/domain/model"
)

func TestPolicyCache(t *testing.T) {
	c := NewPolicyCache(2, time.Minute)

	p := &model.RetentionPolicy{ID: "p1", Name: "one", AppliesToCategories: []string{"finance"}}
	c.Set(p)

	got, ok := c.Get("p1")
	if !ok || got.Name != "one" {
		t.Fatalf("Get(p1) = %v, %v", got, ok)
	}

	// Кэш хранит копии: изменение результата не влияет на содержимое
	got.AppliesToCategories[0] = "changed"
	p.Name = "mutated"
	again, _ := c.Get("p1")
	if again.AppliesToCategories[0] != "finance" || again.Name != "one" {
		t.Errorf("содержимое кэша изменилось: %+v", again)
	}

	c.Invalidate("p1")
	if _, ok := c.Get("p1"); ok {
		t.Error("Get после Invalidate вернул значение")
	}

	// Вытеснение по размеру
	for _, id := range []string{"a", "b", "c"} {
		c.Set(&model.RetentionPolicy{ID: id})
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, ожидалось 2", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Error("старейшая запись не вытеснена")
	}
}

func TestPolicyCache_TTL(t *testing.T) {
	c := NewPolicyCache(10, 20*time.Millisecond)
	c.Set(&model.RetentionPolicy{ID: "p"})
	time.Sleep(60 * time.Millisecond)
	if _, ok := c.Get("p"); ok {
		t.Error("запись не истекла по TTL")
	}
}
