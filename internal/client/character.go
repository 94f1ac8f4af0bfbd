package client

import "image/color"

// CharacterInfo 槽位外观（渲染相关）
type CharacterInfo struct {
	Name         string
	BodyColor    color.RGBA
	OutlineColor color.RGBA
	HandColor    color.RGBA
	ShotColor    color.RGBA
}

var characters = []CharacterInfo{
	{
		Name:         "经典白",
		BodyColor:    color.RGBA{255, 255, 255, 255},
		OutlineColor: color.RGBA{0, 0, 0, 255},
		HandColor:    color.RGBA{255, 150, 150, 255},
		ShotColor:    color.RGBA{255, 230, 120, 255},
	},
	{
		Name:         "烈焰红",
		BodyColor:    color.RGBA{255, 80, 80, 255},
		OutlineColor: color.RGBA{150, 0, 0, 255},
		HandColor:    color.RGBA{255, 200, 100, 255},
		ShotColor:    color.RGBA{255, 120, 60, 255},
	},
	{
		Name:         "冰霜蓝",
		BodyColor:    color.RGBA{100, 180, 255, 255},
		OutlineColor: color.RGBA{0, 50, 150, 255},
		HandColor:    color.RGBA{150, 220, 255, 255},
		ShotColor:    color.RGBA{120, 220, 255, 255},
	},
	{
		Name:         "暗夜黑",
		BodyColor:    color.RGBA{40, 40, 40, 255},
		OutlineColor: color.RGBA{200, 200, 200, 255},
		HandColor:    color.RGBA{80, 80, 120, 255},
		ShotColor:    color.RGBA{200, 160, 255, 255},
	},
}

// GetCharacterInfo 按槽位取外观，超出时循环使用
func GetCharacterInfo(slot int) CharacterInfo {
	if slot < 0 {
		slot = 0
	}
	return characters[slot%len(characters)]
}
