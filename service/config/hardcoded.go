package config

type hardcodedService struct {
}

func NewHardCoded() IService {
	return &hardcodedService{}
}

func (svc *hardcodedService) GetAPIBaseURL() string {
	return "http://localhost:8000/api/v1"
}

// Seconds. Applies to request/response calls only, never to the live stream.
func (svc *hardcodedService) GetRequestTimeout() int {
	return 30
}

func (svc *hardcodedService) GetModeMaxShutdownTime() int {
	return 5
}

func (svc *hardcodedService) GetStreamParameters() StreamParameters {
	return StreamParameters{
		QueueSize:           16,
		MaxEventSize:        8 << 20,
		ConfidenceThreshold: 0.8,
		FPS:                 30,
	}
}

func (svc *hardcodedService) GetListLimits() ListLimits {
	return ListLimits{
		Cameras: 100,
		Events:  50,
		Users:   50,
	}
}

func (svc *hardcodedService) GetLogParameters() LogParameters {
	return LogParameters{
		Level:      "info",
		File:       "",
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
		Compress:   false,
		Color:      true,
	}
}

func (svc *hardcodedService) GetAuthParameters() AuthParameters {
	return AuthParameters{
		RedirectURI:           "http://localhost:3000/",
		PostLogoutRedirectURI: "http://localhost:3000/",
		Scopes:                []string{"email", "openid", "phone"},
	}
}

func (svc *hardcodedService) GetPanelAddr() string {
	return ":8090"
}

func (svc *hardcodedService) GetPanelOrigins() []string {
	return []string{
		"http://localhost:3000",
		"http://127.0.0.1:3000",
		"http://localhost:5173",
		"http://127.0.0.1:5173",
	}
}
