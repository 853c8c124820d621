// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/formrunner/api/schemas"
	"github.com/xkilldash9x/formrunner/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

func (m *MockConfig) Logger() config.LoggerConfig {
	return m.Called().Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	return m.Called().Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Forms() config.FormsConfig {
	return m.Called().Get(0).(config.FormsConfig)
}

func (m *MockConfig) Engine() config.EngineConfig {
	return m.Called().Get(0).(config.EngineConfig)
}

func (m *MockConfig) Store() config.StoreConfig {
	return m.Called().Get(0).(config.StoreConfig)
}

func (m *MockConfig) Server() config.ServerConfig {
	return m.Called().Get(0).(config.ServerConfig)
}

func (m *MockConfig) SetBrowserHeadless(b bool)        { m.Called(b) }
func (m *MockConfig) SetEngineWorkerConcurrency(n int) { m.Called(n) }
func (m *MockConfig) SetFormsStrictAnswers(b bool)     { m.Called(b) }
func (m *MockConfig) SetServerAddr(addr string)        { m.Called(addr) }

// -- Browser Mocks --

// MockPage mocks schemas.Page.
type MockPage struct {
	mock.Mock
}

func (m *MockPage) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockPage) Click(ctx context.Context, loc schemas.Locator) error {
	return m.Called(ctx, loc).Error(0)
}

func (m *MockPage) Type(ctx context.Context, loc schemas.Locator, text string) error {
	return m.Called(ctx, loc, text).Error(0)
}

// Evaluate writes the configured second return value into res when it is a
// *bool and the value is a bool, which covers the interactor's scripts.
func (m *MockPage) Evaluate(ctx context.Context, script string, res interface{}) error {
	args := m.Called(ctx, script, res)
	if b, ok := res.(*bool); ok && len(args) > 1 {
		if v, ok := args.Get(1).(bool); ok {
			*b = v
		}
	}
	return args.Error(0)
}

func (m *MockPage) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockPageLauncher mocks schemas.PageLauncher.
type MockPageLauncher struct {
	mock.Mock
}

func (m *MockPageLauncher) Launch(ctx context.Context) (schemas.Page, error) {
	args := m.Called(ctx)
	page, _ := args.Get(0).(schemas.Page)
	return page, args.Error(1)
}

// -- Runner Mocks --

// MockFormRunner mocks a single variant's form runner.
type MockFormRunner struct {
	mock.Mock
}

func (m *MockFormRunner) Validate(sub schemas.Submission) error {
	return m.Called(sub).Error(0)
}

func (m *MockFormRunner) Run(ctx context.Context, page schemas.Page, sub schemas.Submission) schemas.RunOutcome {
	return m.Called(ctx, page, sub).Get(0).(schemas.RunOutcome)
}
