package model

// Model 标记一个可被序列化框架处理的数据模型。
//
// 约定：
//   - 实现类型必须是结构体（通常以指针形式传递）。
//   - ModelLabel 返回形如 "app.name" 的小写标签，作为模型的全局唯一标识，
//     也是序列化流中 model 字段的取值。
//   - 主键通过结构体 tag 声明（`serde:"id,pk"`），不属于字段集合，
//     在序列化流中单独存放于记录信封中。
type Model interface {
	ModelLabel() string
}

// NaturalKeyed 表示模型除主键外还拥有一组业务语义上的自然键。
//
// 开启 WithNaturalPrimaryKeys 后，序列化时可以省略主键，
// 反序列化保存时再通过自然键在存储中定位既有记录。
type NaturalKeyed interface {
	Model

	// NaturalKey 返回自然键的取值序列，顺序必须稳定。
	NaturalKey() []any
}
