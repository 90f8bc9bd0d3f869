package storage

import (
	"fmt"
	"sync"
	"testing"
)

func TestInMemoryStore_GetPut(t *testing.T) {
	store := NewInMemoryStore("node1")

	if overwrote := store.Put("key1", []byte("value1")); overwrote {
		t.Error("First Put should not report an overwrite")
	}

	v, ok := store.Get("key1")
	if !ok {
		t.Fatal("Expected key1 to be stored")
	}
	if string(v) != "value1" {
		t.Errorf("Expected 'value1', got '%s'", string(v))
	}

	if overwrote := store.Put("key1", []byte("value2")); !overwrote {
		t.Error("Second Put should report an overwrite")
	}
	v, _ = store.Get("key1")
	if string(v) != "value2" {
		t.Errorf("Expected 'value2', got '%s'", string(v))
	}
}

func TestInMemoryStore_GetNotFound(t *testing.T) {
	store := NewInMemoryStore("node1")
	if v, ok := store.Get("nonexistent"); ok || v != nil {
		t.Error("Expected nothing for non-existent key")
	}
	if store.Has("nonexistent") {
		t.Error("Has reported a missing key")
	}
}

func TestInMemoryStore_CopiesValues(t *testing.T) {
	store := NewInMemoryStore("node1")

	in := []byte("abc")
	store.Put("k", in)
	in[0] = 'z'

	out, _ := store.Get("k")
	if string(out) != "abc" {
		t.Errorf("Store kept a reference to the caller's slice: %s", out)
	}

	out[1] = 'z'
	again, _ := store.Get("k")
	if string(again) != "abc" {
		t.Errorf("Get returned internal storage: %s", again)
	}
}

func TestInMemoryStore_EmptyValue(t *testing.T) {
	store := NewInMemoryStore("node1")
	store.Put("empty", nil)

	v, ok := store.Get("empty")
	if !ok {
		t.Fatal("Expected empty value to be stored")
	}
	if len(v) != 0 {
		t.Errorf("Expected empty value, got %q", v)
	}
}

func TestInMemoryStore_DeleteAndKeys(t *testing.T) {
	store := NewInMemoryStore("node1")
	store.Put("b", []byte("2"))
	store.Put("a", []byte("1"))

	keys := store.Keys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("Keys() = %v, want [a b]", keys)
	}

	if err := store.Delete("a"); err != nil {
		t.Errorf("Delete(a) = %v", err)
	}
	if err := store.Delete("a"); err == nil {
		t.Error("Expected error deleting a missing key")
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}

func TestInMemoryStore_Concurrent(t *testing.T) {
	store := NewInMemoryStore("node1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", i)
			store.Put(key, []byte(key))
			store.Get(key)
		}(i)
	}
	wg.Wait()

	if store.Len() != 20 {
		t.Errorf("Len() = %d, want 20", store.Len())
	}
}
