package transport

import "time"

// Customizer 在客户端构建之前修改共享的同步构建器。
type Customizer interface {
	Customize(b *ClientBuilder)
}

// CustomizerFunc 函数适配器
type CustomizerFunc func(b *ClientBuilder)

// Customize 实现 Customizer
func (f CustomizerFunc) Customize(b *ClientBuilder) { f(b) }

// ReadTimeoutCustomizer 返回把共享读取超时写入构建器请求工厂的定制器。
// 连接超时保持构建器上原有的值。
func ReadTimeoutCustomizer(readTimeoutSeconds int) Customizer {
	return CustomizerFunc(func(b *ClientBuilder) {
		b.RequestFactory(b.Settings().WithReadTimeout(time.Duration(readTimeoutSeconds) * time.Second))
	})
}
