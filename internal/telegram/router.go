package telegram

import (
	"context"
	"fmt"
)

// CommandHandler представляет обработчик команды
type CommandHandler func(ctx context.Context, args *CommandArgs) (string, error)

// Router маршрутизирует команды к обработчикам
type Router struct {
	handlers    map[string]CommandHandler
	authManager *AuthManager
	formatter   *Formatter
}

func NewRouter(authManager *AuthManager, formatter *Formatter) *Router {
	return &Router{
		handlers:    make(map[string]CommandHandler),
		authManager: authManager,
		formatter:   formatter,
	}
}

// RegisterHandler регистрирует обработчик команды
func (r *Router) RegisterHandler(command CommandType, handler CommandHandler) {
	r.handlers[string(command)] = handler
}

// HandleCommand обрабатывает команду и возвращает текст ответа.
// Ошибка возвращается только если упал сам обработчик.
func (r *Router) HandleCommand(ctx context.Context, chatID int64, text string) (string, error) {
	if !r.authManager.IsAllowed(chatID) {
		return r.formatter.T("access_denied"), nil
	}

	if err := r.authManager.CheckRateLimit(chatID); err != nil {
		return r.formatter.FormatError(err), nil
	}

	args, err := ParseCommand(text)
	if err != nil {
		return r.formatter.FormatError(err), nil
	}

	handler, exists := r.handlers[args.Command]
	if !exists {
		return fmt.Sprintf("%s: %s", r.formatter.T("error"), "unknown command"), nil
	}

	response, err := handler(ctx, args)
	if err != nil {
		return r.formatter.FormatError(err), err
	}

	return response, nil
}
