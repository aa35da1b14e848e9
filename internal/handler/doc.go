// Package handler 按业务域划分的 HTTP Handler，实现在各子包中
//
// 保留该文件使 swag init --dir ./internal/handler 能识别此目录。
package handler
