package models

// Preferences is the user-facing settings record. It is replaced wholesale on
// every change.
type Preferences struct {
	AutoUpload      bool   `json:"autoUpload"`
	TemperatureUnit string `json:"temperatureUnit"`
	Theme           string `json:"theme"`
	Brightness      int    `json:"brightness"`
}

func DefaultPreferences() Preferences {
	return Preferences{
		AutoUpload:      false,
		TemperatureUnit: "C",
		Theme:           "light",
		Brightness:      80,
	}
}
