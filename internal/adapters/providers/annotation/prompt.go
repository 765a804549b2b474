package annotation

import (
	"fmt"
	"strings"

	"github.com/styleatlas/catalog-annotation/internal/domain/providers"
)

// buildPrompt renders the annotation prompt for one product. Providers may
// carry a custom template with {{VARIABLE}} placeholders; otherwise the
// default prompt is used.
func buildPrompt(template string, payload providers.ProductPayload, attributes []providers.AttributeSpec, hasVision bool) string {
	if template != "" {
		return renderTemplate(template, payload, attributes, hasVision)
	}
	return defaultPrompt(payload, attributes, hasVision)
}

func renderTemplate(template string, payload providers.ProductPayload, attributes []providers.AttributeSpec, hasVision bool) string {
	imageInfo := ""
	if payload.ImageURL != "" {
		if hasVision {
			imageInfo = "[Visual image provided for analysis]"
		} else {
			imageInfo = "Image URL: " + payload.ImageURL
		}
	}

	replacements := map[string]string{
		"{{PRODUCT_INFO}}": formatProductInfo(payload),
		"{{ATTRIBUTES}}":   formatAttributeSections(attributes),
		"{{IMAGE_INFO}}":   imageInfo,
		"{{STYLE_ID}}":     orNA(payload.StyleID),
		"{{NAME}}":         orNA(payload.Name),
		"{{DESCRIPTION}}":  orNA(payload.Description),
		"{{CATEGORY}}":     orNA(payload.Category),
		"{{SUBCATEGORY}}":  orNA(payload.Subcategory),
	}

	prompt := template
	for placeholder, value := range replacements {
		prompt = strings.ReplaceAll(prompt, placeholder, value)
	}
	return prompt
}

func defaultPrompt(payload providers.ProductPayload, attributes []providers.AttributeSpec, hasVision bool) string {
	var b strings.Builder

	b.WriteString("Product Information:\n")
	b.WriteString("- Style ID: " + orNA(payload.StyleID) + "\n")
	b.WriteString("- Name: " + orNA(payload.Name) + "\n")
	b.WriteString("- Description: " + orNA(payload.Description) + "\n")
	b.WriteString("- Category: " + orNA(payload.Category) + "\n")
	b.WriteString("- Subcategory: " + orNA(payload.Subcategory))

	switch {
	case payload.ImageURL != "" && hasVision:
		b.WriteString("\n- Product Image: [Provided as visual input for analysis]")
	case payload.ImageURL != "":
		b.WriteString("\n- Product Image URL: " + payload.ImageURL)
	default:
		b.WriteString("\n- Product Image: Not available")
	}

	b.WriteString("\n\nAttributes to annotate:")
	b.WriteString(formatAttributeSections(attributes))

	b.WriteString("\n\nCritical Instructions:\n")
	b.WriteString("1. Analyze ALL available information: text description AND product image (if provided)\n")
	b.WriteString("2. For RESTRICTED attributes: MUST choose ONLY from the allowed values list\n")
	b.WriteString("   - If none of the allowed values fit, you may provide your own value\n")
	b.WriteString("   - If you cannot determine any value, use \"Unknown\"\n")
	b.WriteString("3. For FREE-FORM attributes: Provide your best inference - be descriptive and specific\n")
	b.WriteString("4. ONLY use \"Unknown\" if you genuinely cannot make ANY reasonable inference\n")
	b.WriteString("5. Avoid \"Unknown\" whenever possible - make educated inferences based on ALL available data\n")
	if hasVision && payload.ImageURL != "" {
		b.WriteString("6. When image is available: Prioritize visual evidence for appearance-related attributes\n")
	}
	fmt.Fprintf(&b, "7. MANDATORY: You MUST return EXACTLY %d attributes in your response\n", len(attributes))
	b.WriteString("8. Return ONLY a valid JSON object with attribute names as keys and values as strings\n")

	fmt.Fprintf(&b, "\nATTRIBUTE CHECKLIST - YOU MUST INCLUDE ALL %d ATTRIBUTES:\n", len(attributes))
	for _, attr := range attributes {
		b.WriteString("- " + attr.Name + "\n")
	}

	b.WriteString("\nExample response format:\n")
	b.WriteString("{\n  \"Color\": \"Navy Blue\",\n  \"Material\": \"Cotton Blend\",\n  \"Pattern\": \"Solid\"\n}\n")
	fmt.Fprintf(&b,
		"\nCRITICAL REMINDER: Your response MUST contain ALL %d attributes listed above. "+
			"If you cannot determine a value, use \"Unknown\".\n", len(attributes))
	b.WriteString("\nRespond with JSON only, no additional text:")

	return b.String()
}

func formatProductInfo(payload providers.ProductPayload) string {
	return fmt.Sprintf(
		"Style ID: %s\nName: %s\nDescription: %s\nCategory: %s\nSubcategory: %s",
		orNA(payload.StyleID), orNA(payload.Name), orNA(payload.Description),
		orNA(payload.Category), orNA(payload.Subcategory),
	)
}

// formatAttributeSections renders the attribute list split into restricted
// and free-form sections, restricted first.
func formatAttributeSections(attributes []providers.AttributeSpec) string {
	var restricted, freeForm []string
	for idx, attr := range attributes {
		line := fmt.Sprintf("\n%d. %s", idx+1, attr.Name)
		if attr.Description != "" {
			line += " - " + attr.Description
		}
		if len(attr.AllowedValues) > 0 {
			line += "\n   REQUIRED: Choose from: " + strings.Join(attr.AllowedValues, ", ")
			restricted = append(restricted, line)
		} else {
			line += "\n   FREE-FORM: Provide your best inference"
			freeForm = append(freeForm, line)
		}
	}

	var b strings.Builder
	if len(restricted) > 0 {
		b.WriteString("\n\nRestricted Attributes (MUST use allowed values):")
		b.WriteString(strings.Join(restricted, ""))
	}
	if len(freeForm) > 0 {
		b.WriteString("\n\nFree-form Attributes (provide your best inference):")
		b.WriteString(strings.Join(freeForm, ""))
	}
	return b.String()
}

func orNA(value string) string {
	if value == "" {
		return "N/A"
	}
	return value
}
