package progress

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Progress is the unlock state of one profile.
type Progress struct {
	gorm.Model
	Profile          string `json:"profile" gorm:"uniqueIndex;size:64"`
	MaxUnlockedLevel int    `json:"maxUnlockedLevel"`
}

func (*Progress) TableName() string {
	return "progress"
}

// LevelResult is one level attempt that reached a terminal phase.
type LevelResult struct {
	gorm.Model
	Profile        string         `json:"profile" gorm:"index;size:64"`
	SessionID      string         `json:"sessionId" gorm:"size:16"`
	LevelID        string         `json:"levelId" gorm:"size:64"`
	LevelNumber    int            `json:"levelNumber" gorm:"index"`
	Phase          string         `json:"phase" gorm:"size:16"`
	Taps           int            `json:"taps"`
	ElapsedSeconds int            `json:"elapsedSeconds"`
	CharactersLeft int            `json:"charactersLeft"`
	Stats          datatypes.JSON `json:"stats"`
}

func (*LevelResult) TableName() string {
	return "level_results"
}
