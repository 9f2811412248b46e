package oss

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"

	"github.com/qs3c/medforum_server/config"
)

type Client struct {
	client     *oss.Client
	bucket     *oss.Bucket
	bucketName string
	cdnDomain  string
}

func NewClient(cfg *config.OSSConfig) (*Client, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	return &Client{
		client:     client,
		bucket:     bucket,
		bucketName: cfg.BucketName,
		cdnDomain:  cfg.CDNDomain,
	}, nil
}

// UploadImage 上传评论内嵌图片，返回可公开访问的 URL
func (c *Client) UploadImage(userID string, data []byte, ext string) (string, error) {
	objectKey := ImageKey(userID, ext)

	err := c.bucket.PutObject(objectKey, bytes.NewReader(data), oss.ContentType(ContentType(ext)))
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}

	return c.GetURL(objectKey), nil
}

// GetURL 获取文件访问 URL
func (c *Client) GetURL(objectKey string) string {
	if c.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", c.cdnDomain, objectKey)
	}
	endpoint := strings.TrimPrefix(strings.TrimPrefix(c.client.Config.Endpoint, "https://"), "http://")
	return fmt.Sprintf("https://%s.%s/%s", c.bucketName, endpoint, objectKey)
}

// ImageKey 图片对象路径：comment-images/<用户>/<随机名><扩展名>
func ImageKey(userID, ext string) string {
	return fmt.Sprintf("comment-images/%s/%s%s", userID, uuid.NewString(), strings.ToLower(ext))
}

// ContentType 根据扩展名获取 Content-Type
func ContentType(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
