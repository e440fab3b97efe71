package api

import (
	"net/http"

	"recruiting-ats/internal/storage"
)

// ListCustomersHandler lists customers
// @Summary List customers
// @Tags customers
// @Produce json
// @Param status query string false "prospect, active or inactive"
// @Param search query string false "Name search"
// @Param limit query int false "Max results"
// @Success 200 {array} storage.Customer
// @Router /customers [get]
func (a *API) ListCustomersHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	customers, err := a.DB.ListCustomers(r.Context(), storage.CustomerFilter{
		Status: q.Get("status"),
		Search: q.Get("search"),
		Limit:  queryInt(r, "limit", 0),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, customers)
}

// CreateCustomerHandler creates a customer
// @Summary Create customer
// @Tags customers
// @Accept json
// @Produce json
// @Param customer body storage.Customer true "Customer"
// @Success 201 {object} storage.Customer
// @Failure 400 {object} errorResponse
// @Router /customers [post]
func (a *API) CreateCustomerHandler(w http.ResponseWriter, r *http.Request) {
	var c storage.Customer
	if !decode(w, r, &c) {
		return
	}
	if err := a.DB.CreateCustomer(r.Context(), &c); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// @Summary Get customer
// @Tags customers
// @Produce json
// @Param id path string true "Customer ID"
// @Success 200 {object} storage.Customer
// @Failure 404 {object} errorResponse
// @Router /customers/{id} [get]
func (a *API) GetCustomerHandler(w http.ResponseWriter, r *http.Request) {
	c, err := a.DB.GetCustomer(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// UpdateCustomerHandler applies the fields present in the body to the customer.
// @Summary Update customer
// @Tags customers
// @Accept json
// @Produce json
// @Param id path string true "Customer ID"
// @Param X-User-ID header string false "Editing user"
// @Param customer body storage.Customer true "Fields to change"
// @Success 200 {object} storage.Customer
// @Failure 423 {object} errorResponse
// @Router /customers/{id} [put]
func (a *API) UpdateCustomerHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	c, err := a.DB.GetCustomer(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !a.checkWritable(w, r, "customer", id) || !decode(w, r, c) {
		return
	}
	c.ID = id
	if err := a.DB.UpdateCustomer(r.Context(), c); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// @Summary Delete customer
// @Description Soft-deletes the customer with its contacts and requirements.
// @Tags customers
// @Param id path string true "Customer ID"
// @Success 204
// @Failure 423 {object} errorResponse
// @Router /customers/{id} [delete]
func (a *API) DeleteCustomerHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !a.checkWritable(w, r, "customer", id) {
		return
	}
	if err := a.DB.DeleteCustomer(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// @Summary List contacts of a customer
// @Tags customers
// @Produce json
// @Param id path string true "Customer ID"
// @Success 200 {array} storage.Contact
// @Router /customers/{id}/contacts [get]
func (a *API) ListContactsHandler(w http.ResponseWriter, r *http.Request) {
	contacts, err := a.DB.ListContacts(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

// @Summary Create contact
// @Tags customers
// @Accept json
// @Produce json
// @Param id path string true "Customer ID"
// @Param contact body storage.Contact true "Contact"
// @Success 201 {object} storage.Contact
// @Router /customers/{id}/contacts [post]
func (a *API) CreateContactHandler(w http.ResponseWriter, r *http.Request) {
	var c storage.Contact
	if !decode(w, r, &c) {
		return
	}
	c.CustomerID = r.PathValue("id")
	if err := a.DB.CreateContact(r.Context(), &c); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// @Summary Update contact
// @Tags customers
// @Accept json
// @Produce json
// @Param id path string true "Contact ID"
// @Param contact body storage.Contact true "Fields to change"
// @Success 200 {object} storage.Contact
// @Failure 423 {object} errorResponse
// @Router /contacts/{id} [put]
func (a *API) UpdateContactHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	c, err := a.DB.GetContact(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	customerID := c.CustomerID
	if !a.checkWritable(w, r, "contact", id) || !decode(w, r, c) {
		return
	}
	c.ID, c.CustomerID = id, customerID
	if err := a.DB.UpdateContact(r.Context(), c); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// @Summary Delete contact
// @Tags customers
// @Param id path string true "Contact ID"
// @Success 204
// @Router /contacts/{id} [delete]
func (a *API) DeleteContactHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !a.checkWritable(w, r, "contact", id) {
		return
	}
	if err := a.DB.DeleteContact(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
