package systems

/**
 * @brief Owns the systems of the engine and the order they start and stop
 * in. Everything but the job system workers runs on the frame goroutine.
 */
type SystemManager struct {
	jobSystem  *TextJobSystem
	textSystem *TextSystem
	fontSystem *FontSystem
}

func NewSystemManager(config TextSystemConfig, lookup FontLookup, opts ...JobSystemOption) (*SystemManager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	js, err := NewTextJobSystem(config, opts...)
	if err != nil {
		return nil, err
	}
	ts, err := NewTextSystem(config, js)
	if err != nil {
		_ = js.Shutdown()
		return nil, err
	}
	return &SystemManager{
		jobSystem:  js,
		textSystem: ts,
		fontSystem: NewFontSystem(ts, lookup),
	}, nil
}

func (sm *SystemManager) JobSystem() *TextJobSystem {
	return sm.jobSystem
}

func (sm *SystemManager) TextSystem() *TextSystem {
	return sm.textSystem
}

func (sm *SystemManager) FontSystem() *FontSystem {
	return sm.fontSystem
}

// Shutdown stops the job system once its queued jobs have run.
func (sm *SystemManager) Shutdown() error {
	return sm.jobSystem.Shutdown()
}
