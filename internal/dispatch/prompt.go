package dispatch

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of the conversation so far, it is only read.
type Turn struct {
	Role Role
	Text string
}

const systemInstruction = `Je bent een assistent voor wagenparkbeheer.
Hieronder staat de lijst met leasecontracten van de gebruiker. Elke regel is een korte samenvatting
(bestuurder, kenteken, auto) met de URL van de detailpagina. Kilometers, prijzen, looptijden,
eigen risico en andere voorwaarden staan NIET in deze lijst, alleen op de detailpagina.

--- CONTRACTEN ---
%s
--- EINDE CONTRACTEN ---

Werkwijze:
1. Bepaal over welk contract de vraag gaat (naam, kenteken of auto).
2. Gaat de vraag over details die alleen op de detailpagina staan, antwoord dan met
   {"action": "fetch", "url": "<url van de detailpagina>"}.
3. Kan de vraag met de lijst zelf beantwoord worden, antwoord dan met
   {"action": "answer", "text": "<antwoord>"}.
4. Twijfel je over het contract, vraag dan om verduidelijking in "text".

Antwoord kort en altijd in JSON.`

func renderHistory(history []Turn) string {
	var out strings.Builder
	for _, turn := range history {
		role := "AI"
		if turn.Role == RoleUser {
			role = "User"
		}
		fmt.Fprintf(&out, "%s: %s\n", role, turn.Text)
	}
	return out.String()
}

func decisionPrompt(records string, history []Turn, question string) string {
	return fmt.Sprintf(systemInstruction, records) + "\n\n" + fmt.Sprintf(
		"Geschiedenis:\n%s\n\nHuidige vraag: %s\n\nWat is de volgende stap? (JSON)",
		renderHistory(history),
		question,
	)
}

func answerPrompt(records, url, content, question string) string {
	return fmt.Sprintf(systemInstruction, records) + "\n\n" + fmt.Sprintf(
		"De detailpagina %s is opgehaald.\n\nInhoud:\n%s\n\nBeantwoord hiermee de vraag van de gebruiker: '%s'.\nGebruik gewone tekst, geen JSON.",
		url,
		content,
		question,
	)
}
