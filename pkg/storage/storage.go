package storage

import (
	"io"
)

// FileInfo 上传文件的元数据
type FileInfo struct {
	ID       string // 存储对象的唯一标识符
	Name     string // 上传时的原始文件名
	Size     int64  // 文件大小（字节）
	MimeType string // 文件MIME类型
	Path     string // 存储内部路径，文档记录中持久化的就是这个值
}

// Storage 原始文档存储接口
// 保存用户上传的原始文件，供提取管线读取和前端预览下载
// 可以有不同实现（本地文件系统、MinIO等）
type Storage interface {
	// Save 保存文件并返回文件信息
	Save(reader io.Reader, filename string) (FileInfo, error)

	// Get 根据存储ID获取文件内容
	Get(id string) (io.ReadCloser, error)

	// GetByPath 根据存储路径直接获取文件内容
	// 文档记录里保存的是路径，提取和预览走这条快路径
	GetByPath(path string) (io.ReadCloser, error)

	// Delete 删除文件
	Delete(id string) error

	// List 列出所有文件
	List() ([]FileInfo, error)

	// Exists 检查文件是否存在
	Exists(id string) (bool, error)
}

// Factory 存储实现的工厂函数
// 用于根据配置创建不同类型的存储实现
type Factory func(cfg interface{}) (Storage, error)
