package domain

import "github.com/shopspring/decimal"

// DefaultCategories is the category set of a fresh install
var DefaultCategories = []string{"Effets Spéciaux", "Câblage", "Machine", "Prestation", "Consommable"}

// DefaultProducts returns the catalog of a fresh install
func DefaultProducts() []Product {
	products := []Product{
		{
			ID:            "prod_hazer_co2",
			Name:          "OMEGA Hazer CO²",
			Description:   "Machine à fumée professionnelle à base de CO² pour des effets de brouillard denses et persistants. Contrôle DMX intégré, fiabilité maximale.",
			Price:         decimal.RequireFromString("1899.99"),
			OriginalPrice: decimal.NewNullDecimal(decimal.RequireFromString("2199.99")),
			Image:         "https://storage.googleapis.com/hostinger-horizons-assets-prod/45c48586-c5e0-4e65-b93e-6bd153f2a4e5/645828453a07d9d1f1cfeb6f188a2eb7.png",
			Category:      "Machine",
			StockQuantity: 25,
		},
		{
			ID:            "prod_liquide_hazer",
			Name:          "Liquide Exclusif OMEGA Pro Hazer CO²",
			Description:   "Formulation haut de gamme pour une qualité de brouillard exceptionnelle, une persistance remarquable et zéro résidu.",
			Price:         decimal.RequireFromString("89.90"),
			Image:         "https://storage.googleapis.com/hostinger-horizons-assets-prod/45c48586-c5e0-4e65-b93e-6bd153f2a4e5/f1b0ff3ae2af3bd4988aea49bbe5677e.png",
			Category:      "Consommable",
			StockQuantity: 150,
		},
		{
			ID:            "prod_mousse_canon",
			Name:          "Canon à Mousse PartyFoam 2000",
			Description:   "Projetez des tonnes de mousse pour des soirées inoubliables. Couverture large et débit élevé.",
			Price:         decimal.RequireFromString("799.00"),
			Image:         "https://images.unsplash.com/photo-1561432399-e4a3a4aa32de?w=500",
			Category:      "Effets Spéciaux",
			StockQuantity: 15,
		},
		{
			ID:            "prod_cable_dmx",
			Name:          "Câble DMX Pro 10m",
			Description:   "Câble de signal DMX 3 broches de qualité professionnelle pour un contrôle fiable de vos éclairages.",
			Price:         decimal.RequireFromString("24.99"),
			Image:         "https://images.unsplash.com/photo-1614300746949-043ac83823e4?w=500",
			Category:      "Câblage",
			StockQuantity: 200,
		},
		{
			ID:            "prod_presta_light",
			Name:          "Prestation Éclairage Scénique",
			Description:   "Service complet de conception et d'installation d'éclairage pour votre événement. Sur devis.",
			Price:         decimal.RequireFromString("1500.00"),
			Image:         "https://images.unsplash.com/photo-1505236858219-8359eb29e329?w=500",
			Category:      "Prestation",
			StockQuantity: 10,
		},
	}
	for i := range products {
		products[i].RefreshStockFlag()
	}
	return products
}
