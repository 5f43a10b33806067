package util

import (
	"encoding/json"
	"fmt"
	"strconv"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// ProbeVideoDuration 通过 ffprobe 获取视频时长（秒）
func ProbeVideoDuration(videoPath string) (int, error) {
	out, err := ffmpeg.Probe(videoPath)
	if err != nil {
		return 0, fmt.Errorf("获取视频信息失败: %w", err)
	}

	var result struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		return 0, fmt.Errorf("解析视频信息失败: %w", err)
	}

	seconds, err := strconv.ParseFloat(result.Format.Duration, 64)
	if err != nil {
		return 0, nil
	}
	return int(seconds + 0.5), nil
}
