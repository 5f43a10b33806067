package util

// 存储类型，对应 storage.type
const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

// 课程媒体允许的类型
const (
	MimeVideo = "video/"
	MimeImage = "image/"
	MimePDF   = "application/pdf"
)

var AllowedVideoExtensions = []string{".mp4", ".mov", ".avi", ".mkv", ".webm"}
