package camera

import "sync"

// HandleCache は識別子ごとに開いたデバイスハンドルを保持する
//
// 充填方針は実装ごとに異なる。MapCache は Open で充填し Close で取り除く。
// NopCache は何も保持しない。
type HandleCache interface {
	// Put はハンドルを保持したら true を返す。false の場合の解放は呼び出し側が行う
	Put(id Identifier, f Filter) bool

	// Has は識別子に対応するハンドルがあるかを返す
	Has(id Identifier) bool

	// Take はハンドルを取り出してキャッシュから削除する
	Take(id Identifier) (Filter, bool)

	// Drain はすべてのハンドルを取り出す
	Drain() []Filter

	// Len は保持しているハンドル数を返す
	Len() int
}

// NopCache は何も保持しないキャッシュ
type NopCache struct{}

func (NopCache) Put(Identifier, Filter) bool { return false }
func (NopCache) Has(Identifier) bool { return false }
func (NopCache) Take(Identifier) (Filter, bool) { return nil, false }
func (NopCache) Drain() []Filter { return nil }
func (NopCache) Len() int { return 0 }

// MapCache は名前とインデックスを別々のキー空間で保持するキャッシュ
type MapCache struct {
	mu      sync.Mutex
	byName  map[string]Filter
	byIndex map[int]Filter
}

// NewMapCache は空の MapCache を作成する
func NewMapCache() *MapCache {
	return &MapCache{
		byName:  make(map[string]Filter),
		byIndex: make(map[int]Filter),
	}
}

// Put は既存のエントリがあれば保持せずに false を返す
func (c *MapCache) Put(id Identifier, f Filter) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id.IsIndex() {
		if _, exists := c.byIndex[id.Index]; exists {
			return false
		}
		c.byIndex[id.Index] = f
		return true
	}
	if _, exists := c.byName[id.Name]; exists {
		return false
	}
	c.byName[id.Name] = f
	return true
}

// Has は識別子に対応するハンドルがあるかを返す
func (c *MapCache) Has(id Identifier) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id.IsIndex() {
		_, ok := c.byIndex[id.Index]
		return ok
	}
	_, ok := c.byName[id.Name]
	return ok
}

// Take はハンドルを取り出してキャッシュから削除する
func (c *MapCache) Take(id Identifier) (Filter, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id.IsIndex() {
		f, ok := c.byIndex[id.Index]
		delete(c.byIndex, id.Index)
		return f, ok
	}
	f, ok := c.byName[id.Name]
	delete(c.byName, id.Name)
	return f, ok
}

// Drain はすべてのハンドルを取り出して空にする
func (c *MapCache) Drain() []Filter {
	c.mu.Lock()
	defer c.mu.Unlock()

	filters := make([]Filter, 0, len(c.byName)+len(c.byIndex))
	for _, f := range c.byName {
		filters = append(filters, f)
	}
	for _, f := range c.byIndex {
		filters = append(filters, f)
	}
	c.byName = make(map[string]Filter)
	c.byIndex = make(map[int]Filter)
	return filters
}

// Len は保持しているハンドル数を返す
func (c *MapCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byName) + len(c.byIndex)
}
