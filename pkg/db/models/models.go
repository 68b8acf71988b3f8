package models

// All lists every persisted model. Tests and local tooling migrate with it;
// production schemas come from the goose migrations.
func All() []any {
	return []any{
		&RestaurantTable{},
		&MenuItem{},
		&RecipeItem{},
		&Order{},
		&OrderLine{},
		&Ingredient{},
		&InventoryTx{},
		&Employee{},
		&Shift{},
		&TimeOff{},
		&OutboxEvent{},
	}
}
