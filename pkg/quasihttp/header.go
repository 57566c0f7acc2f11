package quasihttp

// Header 头部多值映射，key 区分大小写，同一 key 的值保持顺序
// 编码时 key 按字典序写出，不保留 key 之间的插入顺序
type Header map[string][]string

// Add 追加一个值
func (h Header) Add(key, value string) {
	h[key] = append(h[key], value)
}

// Set 替换为单个值
func (h Header) Set(key, value string) {
	h[key] = []string{value}
}

// Get 返回第一个值
func (h Header) Get(key string) string {
	if vs := h[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Values 返回全部值
func (h Header) Values(key string) []string {
	return h[key]
}

// Del 删除 key
func (h Header) Del(key string) {
	delete(h, key)
}

// Clone 深拷贝，nil 保持为 nil
func (h Header) Clone() Header {
	if h == nil {
		return nil
	}
	c := make(Header, len(h))
	for k, vs := range h {
		if vs == nil {
			c[k] = nil
			continue
		}
		c[k] = append(make([]string, 0, len(vs)), vs...)
	}
	return c
}
