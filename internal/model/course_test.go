package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlattenVideos_OrdersByModuleThenVideo(t *testing.T) {
	modules := []CourseModule{
		{Order: 2, Videos: []ModuleVideo{{Title: "c2", Order: 1}, {Title: "c1", Order: 0}}},
		{Order: 0, Videos: []ModuleVideo{{Title: "a1", Order: 0}}},
		{Order: 1, Videos: nil},
		{Order: 1, Videos: []ModuleVideo{{Title: "b1", Order: 0}, {Title: "b2", Order: 3}}},
	}

	videos := FlattenVideos(modules)

	var titles []string
	for _, v := range videos {
		titles = append(titles, v.Title)
	}
	assert.Equal(t, []string{"a1", "b1", "b2", "c1", "c2"}, titles)
	// 不修改入参
	assert.Equal(t, 2, modules[0].Order)
	assert.Equal(t, "c2", modules[0].Videos[0].Title)
}

func TestFlattenVideos_Empty(t *testing.T) {
	assert.Empty(t, FlattenVideos(nil))
	assert.NotNil(t, FlattenVideos(nil))
}

func TestCourse_MediaURLs(t *testing.T) {
	c := &Course{
		ThumbnailURL:     "/uploads/thumb.png",
		CertificateImage: "/uploads/cert.png",
		Modules: []CourseModule{
			{Videos: []ModuleVideo{{URL: "/uploads/v1.mp4"}, {URL: ""}, {URL: "https://youtu.be/x"}}},
		},
	}
	assert.Equal(t, []string{"/uploads/thumb.png", "/uploads/cert.png", "/uploads/v1.mp4", "https://youtu.be/x"}, c.MediaURLs())
}

func TestOrphanedURLs(t *testing.T) {
	before := []string{"a", "b", "c", "b"}
	after := []string{"c", "d"}
	assert.Equal(t, []string{"a", "b"}, OrphanedURLs(before, after))
	assert.Empty(t, OrphanedURLs([]string{"x"}, []string{"x"}))
	assert.Empty(t, OrphanedURLs(nil, []string{"x"}))
}
