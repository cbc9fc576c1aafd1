package parser

import (
	"github.com/aluiziolira/go-scrape-jarvis/config"
	"github.com/aluiziolira/go-scrape-jarvis/models"
)

// ExtractProduct applies the profile's field table to a product page. It never
// fails; fields that cannot be found stay empty.
func ExtractProduct(page *Page, profile *config.Profile, norm *Normalizer) *models.Product {
	product := models.NewProduct(page.URL)

	product.Title = extractTitle(page, profile)
	product.ShortDescription = page.Field(config.FieldShortDescription, profile.Field(config.FieldShortDescription))
	product.ActualPrice = NormalizePrice(page.Field(config.FieldActualPrice, profile.Field(config.FieldActualPrice)))
	product.OriginalPrice = StrikePrice(page.Field(config.FieldOriginalPrice, profile.Field(config.FieldOriginalPrice)))

	images := CollectImages(page, profile.Images, norm)
	product.Images = ImageURLs(images)

	desc := BuildDescription(page, profile.Description, images)
	product.StyledDescription = desc.HTML
	product.Notes = desc.Notes
	product.QA = desc.QA

	return product
}

// extractTitle walks the title selectors, then the document fallbacks, then
// the URL slug.
func extractTitle(page *Page, profile *config.Profile) string {
	if title := CleanTitle(page.Field(config.FieldTitle, profile.Field(config.FieldTitle)), profile.TitleSuffix()); title != "" {
		return title
	}
	for _, expr := range profile.TitleFallbacks {
		if title := CleanTitle(firstText(page.Select(expr)), profile.TitleSuffix()); title != "" {
			return title
		}
	}
	return TitleFromURL(page.URL)
}
