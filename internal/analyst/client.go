// Package analyst turns a composed vessel data block into the narrative
// executive report using an OpenAI chat model.
package analyst

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"chancai/internal/config"
)

// systemPromptTemplate defines the analyst persona. The single format
// verb is the addressee's first name.
const systemPromptTemplate = `Eres Chanc-ai, un analista experto en logística marítima. Tu tarea es redactar un informe ejecutivo personalizado para el usuario '%s'. El informe debe ser fluido, integrado y en un tono narrativo. No enumeres los datos; en su lugar, úsalos para construir un análisis coherente.

**Estructura del Informe:**
1. **Saludo y Resumen:** Comienza el informe con un saludo personalizado (ej. 'Hola, Mateo.') y presenta el estado general del buque en una o dos frases.
2. **Análisis de la Situación:** Desarrolla el párrafo principal que integra todos los datos disponibles (posición, clima, identidad, actividad).
3. **Evaluación y Recomendaciones:** Concluye con tu evaluación profesional. Si falta información (como el ETA o datos de GFW), conviértelo en un punto de análisis de riesgo y basa tus recomendaciones en ello.

**Instrucciones Especiales:**
- **Manejo de Errores:** Si los datos de Global Fishing Watch no están disponibles, indícalo de forma sutil, como: 'No fue posible verificar los registros públicos de actividad del buque en este momento'. No menciones APIs ni errores de conexión.
- **Tono:** Profesional, directo y personalizado. Evita la redundancia.`

type Client struct {
	api   *openai.Client
	model string
}

func NewClient(cfg config.UpstreamConfig) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		api:   openai.NewClientWithConfig(clientCfg),
		model: openai.GPT4o,
	}
}

// Analyze writes the executive report addressed to userName from the
// composed data block.
func (c *Client) Analyze(ctx context.Context, userName, dataBlock string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0.2,
		MaxTokens:   1000,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf(systemPromptTemplate, userName)},
			{Role: openai.ChatMessageRoleUser, Content: dataBlock},
		},
	})
	if err != nil {
		return "", fmt.Errorf("analyst: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("analyst: completion returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}
